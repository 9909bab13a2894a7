package setup

import (
	"flag"
	"fmt"
	"io"
	"os"
)

const usage = `Clinical Trial Matcher MCP setup

Usage:
  mcp-server setup <command> [options]

Commands:
  register   Register this server with the desktop MCP client
  status     Show registration status

Options for register and status:
  --client-config <path>   client config file (default: platform location)
Options for register:
  --binary <path>          server binary (default: this executable)
  --config <path>          server config file passed on launch
`

// Run executes a setup subcommand, writing human-readable output to out.
func Run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(out)
	clientConfig := fs.String("client-config", "", "client config file")
	binary := fs.String("binary", "", "server binary")
	serverConfig := fs.String("config", "", "server config file")

	switch args[0] {
	case "register":
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		path, err := Register(RegisterOptions{
			ConfigPath: *clientConfig,
			BinaryPath: *binary,
			ConfigFile: *serverConfig,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}
		fmt.Fprintf(out, "Registered %s in %s\nRestart the client to load it.\n", ServerName, path)
		if os.Getenv(SecretEnv) != "" {
			fmt.Fprintf(out, "Note: %s was not copied into the client config. Set narrative.api_key in the server config file instead.\n", SecretEnv)
		}
		return nil

	case "status":
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		status, err := GetStatus(*clientConfig)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Client config: %s\n", status.ConfigPath)
		if status.Registered {
			fmt.Fprintf(out, "Registered: yes (%s)\n", status.Command)
		} else {
			fmt.Fprintln(out, "Registered: no")
		}
		for _, issue := range status.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
		return nil

	case "help", "--help", "-h":
		fmt.Fprint(out, usage)
		return nil

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown setup command: %s", args[0])
	}
}
