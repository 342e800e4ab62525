//go:build !windows

// Package main provides stubs for service functions on non-Windows platforms.
package main

import "fmt"

// RunAsService is a no-op on non-Windows platforms.
// Returns false to indicate the application should run normally.
func RunAsService() (bool, error) {
	return false, nil
}

// ServiceMain is the entry point for service management commands.
// Delegates to HandleServiceCommand.
func ServiceMain(args []string) bool {
	return HandleServiceCommand(args)
}

// HandleServiceCommand handles service-related command-line arguments.
// On non-Windows platforms the management commands are recognized but only
// print a notice; help still prints usage. Returns true if a command was
// handled.
func HandleServiceCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}

	switch args[1] {
	case "install", "uninstall", "remove", "start", "stop", "restart", "status":
		fmt.Printf("Service management (%s) is only supported on Windows.\n", args[1])
		fmt.Println("On this platform, run the binary under systemd or another supervisor.")
		return true
	case "help", "-h", "--help", "-help":
		PrintServiceUsage()
		return true
	default:
		return false
	}
}

// PrintServiceUsage prints the help/usage information for service commands.
func PrintServiceUsage() {
	fmt.Println("Hasselize Service Management")
	fmt.Println()
	fmt.Println("Usage: hasselize <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  install    Install the application as a Windows service")
	fmt.Println("  uninstall  Remove the Windows service (alias: remove)")
	fmt.Println("  start      Start the Windows service")
	fmt.Println("  stop       Stop the Windows service")
	fmt.Println("  restart    Restart the Windows service (stop then start)")
	fmt.Println("  status     Show the current service status")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Run without arguments to start the backend in foreground mode.")
}
