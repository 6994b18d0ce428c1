package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/speechcare/internal/profile"
	"github.com/hrygo/speechcare/internal/version"
	"github.com/hrygo/speechcare/server"
	"github.com/hrygo/speechcare/server/middleware"
	"github.com/hrygo/speechcare/store"
	"github.com/hrygo/speechcare/store/db"
)

const greetingBanner = `
 ___ _ __   ___  ___  ___| |__   ___ __ _ _ __ ___
/ __| '_ \ / _ \/ _ \/ __| '_ \ / __/ _' | '__/ _ \
\__ \ |_) |  __/  __/ (__| | | | (_| (_| | | |  __/
|___/ .__/ \___|\___|\___|_| |_|\___\__,_|_|  \___|
    |_|
`

var (
	rootCmd = &cobra.Command{
		Use:   "speechcare",
		Short: `Text-to-speech audio service for speech therapy and AAC boards.`,
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := loadProfile()

			logCloser, err := server.ConfigureLogger(instanceProfile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to configure logger: %v\n", err)
				os.Exit(1)
			}
			defer logCloser.Close()

			ctx, cancel := context.WithCancel(context.Background())
			dbDriver, err := db.NewDBDriver(instanceProfile)
			if err != nil {
				cancel()
				slog.Error("failed to create db driver", "error", err)
				return
			}

			storeInstance := store.New(dbDriver, instanceProfile)
			if err := storeInstance.Migrate(ctx); err != nil {
				cancel()
				slog.Error("failed to migrate", "error", err)
				closeStore(storeInstance)
				return
			}

			credential := watchCredential(instanceProfile)
			s, err := server.NewServer(ctx, instanceProfile, storeInstance, credential)
			if err != nil {
				cancel()
				slog.Error("failed to create server", "error", err)
				closeStore(storeInstance)
				return
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			// The default signal sent by the `kill` command is SIGTERM,
			// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)

			if err := s.Start(ctx); err != nil {
				cancel()
				slog.Error("failed to start server", "error", err)
				return
			}

			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				secret = os.Getenv("SPEECHCARE_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("jwt secret is not configured")
			}
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := middleware.IssueToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetCurrentVersion(viper.GetString("mode")))
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("instance-url", "", "the url of your speechcare instance")
	rootCmd.PersistentFlags().String("config", "", "config file holding rotatable secrets such as tts-api-key")
	rootCmd.PersistentFlags().String("jwt-secret", "", "secret used to sign and verify API bearer tokens")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "instance-url", "config", "jwt-secret"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	tokenCmd.Flags().String("subject", "therapist", "subject claim of the token")
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "lifetime of the token")
	rootCmd.AddCommand(tokenCmd, versionCmd)

	viper.SetEnvPrefix("speechcare")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
}

func closeStore(s *store.Store) {
	if err := s.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
}

func loadProfile() *profile.Profile {
	instanceProfile := &profile.Profile{
		Mode:        viper.GetString("mode"),
		Addr:        viper.GetString("addr"),
		Port:        viper.GetInt("port"),
		Data:        viper.GetString("data"),
		Driver:      viper.GetString("driver"),
		DSN:         viper.GetString("dsn"),
		InstanceURL: viper.GetString("instance-url"),
		Version:     version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if secret := viper.GetString("jwt-secret"); secret != "" {
		instanceProfile.JWTSecret = secret
	}
	if err := instanceProfile.Validate(); err != nil {
		panic(err)
	}
	return instanceProfile
}

// watchCredential layers a config-file key over the environment keys. The file
// is watched, so rotating the key there takes effect without a restart.
func watchCredential(instanceProfile *profile.Profile) profile.CredentialFunc {
	configFile := viper.GetString("config")
	if configFile == "" {
		return instanceProfile.Credential()
	}

	fileConfig := viper.New()
	fileConfig.SetConfigFile(configFile)
	if err := fileConfig.ReadInConfig(); err != nil {
		slog.Warn("failed to read config file, using environment credentials", "file", configFile, "error", err)
		return instanceProfile.Credential()
	}

	reloadable := &profile.ReloadableCredential{}
	reloadable.Set(fileConfig.GetString("tts-api-key"))
	fileConfig.OnConfigChange(func(e fsnotify.Event) {
		reloadable.Set(fileConfig.GetString("tts-api-key"))
		slog.Info("config file changed, tts credential reloaded", "file", e.Name, "set", reloadable.Get() != "")
	})
	fileConfig.WatchConfig()

	return profile.ChainCredential(reloadable.Func(), instanceProfile.Credential())
}

func printGreetings(profile *profile.Profile) {
	if profile.IsDev() {
		println("Development mode is enabled")
		println("DSN: ", profile.DSN)
	}
	fmt.Printf(`---
Server profile
version: %s
data: %s
addr: %s
port: %d
mode: %s
driver: %s
tts provider: %s
storage: %s (%s)
---
`, profile.Version, profile.Data, profile.Addr, profile.Port, profile.Mode, profile.Driver, profile.TTSProvider, profile.StorageDriver, profile.StorageBucket)

	print(greetingBanner)
	if len(profile.Addr) == 0 {
		fmt.Printf("Version %s has been started on port %d\n", profile.Version, profile.Port)
	} else {
		fmt.Printf("Version %s has been started on address '%s' and port %d\n", profile.Version, profile.Addr, profile.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
