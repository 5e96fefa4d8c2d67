package main

import (
	"fmt"

	"ecogateway/internal/config"
)

func main() {
	fmt.Println("# Ecosystem Gateway Environment Variables")
	fmt.Println()
	fmt.Println("The gateway supports configuration via environment variables.")
	fmt.Println("Environment variables override values from the configuration file.")
	fmt.Println("Durations use Go syntax (500ms, 10s, 1m). Map fields such as")
	fmt.Println("client headers and the service table can only be set in the file.")
	fmt.Println()
	fmt.Println("## Available Environment Variables")
	fmt.Println()

	for _, example := range config.EnvExample(&config.Config{}) {
		fmt.Printf("- `%s`\n", example)
	}

	fmt.Println()
	fmt.Println("## Examples")
	fmt.Println()
	fmt.Println("```bash")
	fmt.Println("# Override HTTP port")
	fmt.Println("export ECOGATEWAY_SERVER_PORT=9090")
	fmt.Println()
	fmt.Println("# Tighten upstream timeouts")
	fmt.Println("export ECOGATEWAY_CLIENT_TIMEOUT=3s")
	fmt.Println("export ECOGATEWAY_CLIENT_HEALTHTIMEOUT=2s")
	fmt.Println("export ECOGATEWAY_CLIENT_AGGREGATETIMEOUT=8s")
	fmt.Println()
	fmt.Println("# Configure CORS")
	fmt.Println("export ECOGATEWAY_SERVER_CORS_ALLOWEDORIGINS=https://example.com,https://app.example.com")
	fmt.Println()
	fmt.Println("# Run gateway with env vars")
	fmt.Println("./ecogateway -config ecogateway.yaml")
	fmt.Println("```")
}
