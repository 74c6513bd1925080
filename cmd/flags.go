package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBinding ties a command-line flag to a configuration key.
type flagBinding struct {
	flag string
	key  string
}

// bindFlags binds every flag of fs named in bindings to its key. Flags the
// command does not define are skipped. A bound flag only overrides other
// sources when it was set on the command line.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, bindings []flagBinding) error {
	for _, b := range bindings {
		flag := fs.Lookup(b.flag)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(b.key, flag); err != nil {
			return fmt.Errorf("binding --%s to %s: %w", b.flag, b.key, err)
		}
	}
	return nil
}

// validateFormat checks an output format flag.
func validateFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unsupported format: %s (supported: %v)", format, allowed)
}
