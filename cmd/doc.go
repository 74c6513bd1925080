// Package cmd implements the ssrgate command line with Cobra.
//
// Configuration is resolved by Viper from, highest priority first:
//
//  1. flags given on the command line (--port, --env, ...)
//  2. SSRGATE_<SECTION>_<KEY> environment variables, e.g. SSRGATE_SERVER_PORT
//  3. a dotenv file, .env by default, which only fills unset variables
//  4. the config file: --config, else SSRGATE_CONFIG_FILE, else .ssrgate.yml
//  5. built-in defaults
//
// # Commands
//
//   - serve: run the SSR gateway
//   - modules: list render modules and how the entry modules resolve
//   - config show|init|validate: inspect and create configuration
//   - version: print build information
//
// SSRGATE_ENV=production selects production mode.
package cmd
