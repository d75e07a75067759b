// Package cli builds the listing service command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/nimburion/listing/pkg/cache"
	"github.com/nimburion/listing/pkg/config"
	"github.com/nimburion/listing/pkg/configschema"
	"github.com/nimburion/listing/pkg/listing"
	"github.com/nimburion/listing/pkg/observability/logger"
	"github.com/nimburion/listing/pkg/server"
	"github.com/nimburion/listing/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	policiesAnnotationPrefix = "policies."
	defaultPolicyContext     = "run"

	// bounds one full keyspace scan by cache clean
	cleanTimeout = time.Minute

	// DefaultEnvPrefix prefixes every environment override, e.g. LISTING_HTTP_PORT.
	DefaultEnvPrefix = "LISTING"
)

// CommandPolicy tells deployment tooling when a command is meant to run.
type CommandPolicy string

const (
	PolicyAlways   CommandPolicy = "always"
	PolicyNever    CommandPolicy = "never"
	PolicyOnce     CommandPolicy = "once"
	PolicyRun      CommandPolicy = "run"
	PolicyManual   CommandPolicy = "manual"
	PolicyOnDemand CommandPolicy = "on_demand"
)

// ServiceCommandOptions configures the root command.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// RunServer defaults to Serve.
	RunServer func(ctx context.Context, cfg *config.Config, log logger.Logger) error
	// CheckDependencies defaults to CheckDependencies.
	CheckDependencies func(ctx context.Context, cfg *config.Config, log logger.Logger, out io.Writer) error
	// OpenCache defaults to cache.NewStore.
	OpenCache func(cfg config.CacheConfig, log logger.Logger) (cache.Store, error)

	CustomCommands []*cobra.Command
}

// NewServiceCommand creates the root command. Running it without a
// subcommand is the same as "serve".
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	if strings.TrimSpace(opts.EnvPrefix) == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	if opts.RunServer == nil {
		opts.RunServer = Serve
	}
	if opts.CheckDependencies == nil {
		opts.CheckDependencies = CheckDependencies
	}
	if opts.OpenCache == nil {
		opts.OpenCache = cache.NewStore
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	SetCommandPolicies(rootCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})

	var cfgPath string
	var secretFilePath string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&secretFilePath, "secret-file", "", "path to secrets file (sets "+resolveEnvPrefix(opts.EnvPrefix)+"_SECRETS_FILE)")
	config.RegisterFlags(rootCmd.PersistentFlags())

	loadConfig := func() (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, secretFilePath, rootCmd.PersistentFlags())
	}

	var shortVersion bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(opts.Name)
			out := cmd.OutOrStdout()
			if shortVersion {
				fmt.Fprintln(out, info.String())
				return
			}
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
		},
	}
	versionCmd.Flags().BoolVar(&shortVersion, "short", false, "print a single line")
	SetCommandPolicies(versionCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	rootCmd.AddCommand(versionCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the listing API and management servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return opts.RunServer(cmd.Context(), cfg, log)
		},
	}
	SetCommandPolicies(serveCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyRun})
	rootCmd.AddCommand(serveCmd)
	rootCmd.RunE = serveCmd.RunE

	healthCmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check connectivity to the document store and the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return opts.CheckDependencies(cmd.Context(), cfg, log, cmd.OutOrStdout())
		},
	}
	SetCommandPolicies(healthCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	rootCmd.AddCommand(healthCmd)

	rootCmd.AddCommand(newCacheCommand(opts, loadConfig))
	rootCmd.AddCommand(newConfigCommand(opts, &cfgPath, &secretFilePath))

	for _, customCmd := range opts.CustomCommands {
		ensureDefaultPolicy(customCmd)
		rootCmd.AddCommand(customCmd)
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = false
	rootCmd.InitDefaultCompletionCmd()
	for _, subCmd := range rootCmd.Commands() {
		if subCmd != nil && subCmd.Name() == "completion" {
			SetCommandPolicies(subCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
			break
		}
	}

	return rootCmd
}

func newCacheCommand(opts ServiceCommandOptions, loadConfig func() (*config.Config, logger.Logger, error)) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Listing cache maintenance",
	}
	SetCommandPolicies(cacheCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})

	var pattern, entity string
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete cached listing pages",
		Long: "Delete cached listing pages. Without flags every listing key is removed; " +
			"--entity narrows to one entity and --pattern takes a glob under the key prefix.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			resolved, err := ResolveCleanPattern(cfg.Listing.KeyPrefix, entity, pattern)
			if err != nil {
				return err
			}

			store, err := opts.OpenCache(cfg.Cache, log)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					log.Error("failed to close cache", "error", closeErr)
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), cleanTimeout)
			defer cancel()
			deleted, err := store.DeleteByPattern(ctx, resolved)
			if err != nil {
				return fmt.Errorf("clean cache pattern %q: %w", resolved, err)
			}
			log.Info("cache cleaned", "pattern", resolved, "deleted", deleted, "backend", store.Name())
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys matching %s\n", deleted, resolved)
			return nil
		},
	}
	SetCommandPolicies(cleanCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})
	cleanCmd.Flags().StringVarP(&pattern, "pattern", "p", "", "glob of keys to delete, must start with the listing key prefix")
	cleanCmd.Flags().StringVarP(&entity, "entity", "e", "", "delete only this entity's pages")
	cacheCmd.AddCommand(cleanCmd)
	return cacheCmd
}

func newConfigCommand(opts ServiceCommandOptions, cfgPath, secretFilePath *string) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}
	SetCommandPolicies(configCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applySecretFileFlag(opts.EnvPrefix, *secretFilePath); err != nil {
				return err
			}
			if _, err := config.NewViperLoader(*cfgPath, resolveEnvPrefix(opts.EnvPrefix)).WithFlags(cmd.Flags()).Load(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
	SetCommandPolicies(validateCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	configCmd.AddCommand(validateCmd)

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applySecretFileFlag(opts.EnvPrefix, *secretFilePath); err != nil {
				return err
			}
			loader := config.NewViperLoader(*cfgPath, resolveEnvPrefix(opts.EnvPrefix)).WithFlags(cmd.Flags())
			if _, err := loader.Load(); err != nil {
				return err
			}
			formatted, err := formatSettings(loader.RedactedSettings())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	}
	SetCommandPolicies(showCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	configCmd.AddCommand(showCmd)

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults := config.DefaultConfig()
			if strings.TrimSpace(opts.Name) != "" {
				defaults.Service.Name = opts.Name
			}
			schema, err := configschema.Build(defaults)
			if err != nil {
				return err
			}
			data, err := configschema.MarshalIndent(schema)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	SetCommandPolicies(schemaCmd, map[string]CommandPolicy{defaultPolicyContext: PolicyOnDemand})
	configCmd.AddCommand(schemaCmd)

	return configCmd
}

// Serve builds the runtime and runs both servers until SIGINT or SIGTERM.
func Serve(_ context.Context, cfg *config.Config, log logger.Logger) error {
	rt, err := server.NewRuntime(cfg, log)
	if err != nil {
		return err
	}
	opts := rt.Options(cfg, log)
	servers, err := server.BuildHTTPServers(opts)
	if err != nil {
		_ = rt.Close()
		return err
	}
	return server.RunHTTPServersWithSignals(servers, opts)
}

// CheckDependencies runs every registered health check once and reports each
// result to out. It fails only when a required dependency is unhealthy.
func CheckDependencies(ctx context.Context, cfg *config.Config, log logger.Logger, out io.Writer) error {
	rt, err := server.NewRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			log.Error("failed to close runtime", "error", closeErr)
		}
	}()

	result := rt.Health.Check(ctx)
	for _, check := range result.Checks {
		line := fmt.Sprintf("%-10s %s", check.Name, check.Status)
		if check.Error != "" {
			line += " (" + check.Error + ")"
		}
		fmt.Fprintln(out, line)
	}
	if !result.IsHealthy() {
		return fmt.Errorf("dependencies unhealthy: %s", result.Status)
	}
	return nil
}

// ResolveCleanPattern returns the key glob "cache clean" deletes. An explicit
// pattern must stay under the listing key prefix so unrelated keys sharing the
// cache are never touched.
func ResolveCleanPattern(keyPrefix, entity, pattern string) (string, error) {
	deriver := listing.KeyDeriver{Prefix: keyPrefix}
	pattern = strings.TrimSpace(pattern)
	entity = strings.TrimSpace(entity)

	if pattern == "" {
		return deriver.Pattern(entity), nil
	}
	if entity != "" {
		return "", errors.New("--pattern and --entity are mutually exclusive")
	}
	root := strings.TrimSuffix(deriver.Pattern(""), "*")
	if !strings.HasPrefix(pattern, root) {
		return "", fmt.Errorf("pattern %q must start with %q", pattern, root)
	}
	return pattern, nil
}

// LoadConfigAndLogger loads and validates configuration and builds the zap
// logger it describes.
func LoadConfigAndLogger(cfgPath, envPrefix, secretFilePath string, flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
	envPrefix = resolveEnvPrefix(envPrefix)
	if err := applySecretFileFlag(envPrefix, secretFilePath); err != nil {
		return nil, nil, err
	}
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).WithFlags(flags).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout, "service", cfg.Service.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	logConfigIfDebug(log, cfg)
	return cfg, log, nil
}

// SetCommandPolicies stores policies as command annotations under the "policies." prefix.
func SetCommandPolicies(cmd *cobra.Command, policies map[string]CommandPolicy) {
	if cmd == nil {
		return
	}
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string)
	}
	for _, key := range policyAnnotationKeys(cmd.Annotations) {
		delete(cmd.Annotations, key)
	}
	for context, policy := range policies {
		trimmedContext := strings.TrimSpace(context)
		if trimmedContext == "" {
			continue
		}
		cmd.Annotations[policiesAnnotationPrefix+trimmedContext] = string(policy)
	}
}

// GetCommandPolicies returns command policies from annotations.
func GetCommandPolicies(cmd *cobra.Command) map[string]string {
	out := map[string]string{}
	if cmd == nil {
		return out
	}
	for key, value := range cmd.Annotations {
		if !strings.HasPrefix(key, policiesAnnotationPrefix) {
			continue
		}
		context := strings.TrimPrefix(key, policiesAnnotationPrefix)
		if strings.TrimSpace(context) == "" {
			continue
		}
		out[context] = value
	}
	return out
}

// Execute runs the command and exits non-zero on error.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func ensureDefaultPolicy(cmd *cobra.Command) {
	if cmd == nil {
		return
	}
	if len(GetCommandPolicies(cmd)) == 0 {
		SetCommandPolicies(cmd, map[string]CommandPolicy{defaultPolicyContext: PolicyAlways})
	}
}

func policyAnnotationKeys(annotations map[string]string) []string {
	keys := make([]string, 0, len(annotations))
	for key := range annotations {
		if strings.HasPrefix(key, policiesAnnotationPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func applySecretFileFlag(envPrefix, secretFilePath string) error {
	if secretFilePath == "" {
		return nil
	}
	info, err := os.Stat(secretFilePath)
	if err != nil {
		return fmt.Errorf("secret file %s is not accessible: %w", secretFilePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("secret file %s must not be a directory", secretFilePath)
	}
	return os.Setenv(resolveEnvPrefix(envPrefix)+"_SECRETS_FILE", filepath.Clean(secretFilePath))
}

func formatSettings(settings map[string]interface{}) (string, error) {
	if len(settings) == 0 {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil {
		return
	}
	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}
	log.Debug("effective configuration",
		"service", cfg.Service.Name,
		"database", cfg.Database.Type,
		"cache", cfg.Cache.Type,
		"entities", len(cfg.Listing.Entities),
	)
}

func resolveEnvPrefix(prefix string) string {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return DefaultEnvPrefix
	}
	return strings.ToUpper(trimmed)
}
