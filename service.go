package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kardianos/service"
	"go.uber.org/zap"

	"eegstream/core"
	"eegstream/logging"
	"eegstream/shutdown"
)

// errServiceStop is the shutdown cause when the service manager stops us.
var errServiceStop = errors.New("service stop requested")

// Program runs the acquisition under a system service manager (Windows
// SCM, systemd, launchd). It implements service.Interface.
type Program struct {
	cfg    *core.Config
	logger *logging.Logger

	mgr  *shutdown.Manager
	exit chan struct{}
	code int
}

// Start is called by the service manager. It must not block.
func (p *Program) Start(s service.Service) error {
	timeout := 30 * time.Second
	if p.cfg != nil && p.cfg.ShutdownTimeout > 0 {
		timeout = p.cfg.ShutdownTimeout
	}
	// Signals are delivered through Stop, so the manager does not watch them.
	p.mgr = shutdown.NewManager(p.logger.Component("shutdown"), shutdown.WithTimeout(timeout))
	p.exit = make(chan struct{})

	go p.run()
	return nil
}

// Stop cancels the run and waits for the shutdown sequence to finish.
func (p *Program) Stop(s service.Service) error {
	p.mgr.Trigger(errServiceStop)

	select {
	case <-p.exit:
	case <-time.After(p.stopTimeout()):
		return fmt.Errorf("timeout waiting for service to stop")
	}
	if p.code != core.ExitCodeSuccess {
		return fmt.Errorf("service exited with code %d (%s)", p.code, core.ExitCodeName(p.code))
	}
	return nil
}

func (p *Program) run() {
	defer close(p.exit)
	p.code = runForeground(p.mgr, p.cfg, p.logger)
}

func (p *Program) stopTimeout() time.Duration {
	if p.cfg != nil && p.cfg.ShutdownTimeout > 0 {
		return p.cfg.ShutdownTimeout + 5*time.Second
	}
	return 35 * time.Second
}

// ServiceConfig returns the service definition. Configuration is read from
// the environment or a .env file next to the working directory.
func ServiceConfig() *service.Config {
	return &service.Config{
		Name:        "eegstream",
		DisplayName: "EEG Stream Acquisition",
		Description: "Streams EEG samples through bounded buffers to a live view and a session recorder",
		Arguments:   []string{},
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
}

func newService(prg *Program) (service.Service, error) {
	s, err := service.New(prg, ServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

// RunAsService runs the application under the service manager when the
// process was not started from a terminal. It returns false when running
// interactively.
func RunAsService(cfg *core.Config, logger *logging.Logger) (bool, error) {
	if service.Interactive() {
		return false, nil
	}
	s, err := newService(&Program{cfg: cfg, logger: logger})
	if err != nil {
		return false, err
	}

	logger.Info("Running under service manager", zap.String("platform", service.Platform()))
	if err := s.Run(); err != nil {
		return true, fmt.Errorf("service run failed: %w", err)
	}
	return true, nil
}

// controlService runs one service control action (install, start, ...).
func controlService(action string) error {
	s, err := newService(&Program{})
	if err != nil {
		return err
	}
	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("failed to %s service: %w", action, err)
	}
	return nil
}

// ServiceStatus returns the current status of the installed service.
func ServiceStatus() (service.Status, error) {
	s, err := newService(&Program{})
	if err != nil {
		return service.StatusUnknown, err
	}
	status, err := s.Status()
	if err != nil {
		return service.StatusUnknown, fmt.Errorf("failed to get service status: %w", err)
	}
	return status, nil
}

// StatusText describes a service status for the status command.
func StatusText(status service.Status) string {
	switch status {
	case service.StatusRunning:
		return "Service is running"
	case service.StatusStopped:
		return "Service is stopped"
	default:
		return "Service status unknown"
	}
}

// PrintServiceUsage prints the help for service commands.
func PrintServiceUsage() {
	fmt.Println("eegstream service management")
	fmt.Println()
	fmt.Println("Usage: eegstream <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  install    Install eegstream as a system service")
	fmt.Println("  uninstall  Remove the system service (alias: remove)")
	fmt.Println("  start      Start the service")
	fmt.Println("  stop       Stop the service")
	fmt.Println("  restart    Restart the service")
	fmt.Println("  status     Show the current service status")
	fmt.Println("  version    Print build information")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Run without arguments to acquire in the foreground.")
}

// serviceAction maps a command-line word onto a service.Control action.
// ok is false for words that are not service commands.
func serviceAction(arg string) (action string, ok bool) {
	switch arg {
	case "install", "uninstall", "start", "stop", "restart":
		return arg, true
	case "remove":
		return "uninstall", true
	}
	return "", false
}

// HandleServiceCommand handles service-related command-line arguments.
// Returns true if a service command was handled, false otherwise.
func HandleServiceCommand(args []string) bool {
	if len(args) < 2 {
		return false
	}

	switch args[1] {
	case "help", "-h", "--help", "-help":
		PrintServiceUsage()
		return true
	case "status":
		status, err := ServiceStatus()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(core.ExitCodeError)
		}
		fmt.Println(StatusText(status))
		return true
	}

	action, ok := serviceAction(args[1])
	if !ok {
		return false
	}
	if err := controlService(action); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(core.ExitCodeError)
	}
	fmt.Printf("Service %s succeeded\n", action)
	return true
}
