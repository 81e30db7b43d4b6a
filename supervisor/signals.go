package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// notifySignals registers the process-wide signal set this supervisor
// forwards to its children.
func notifySignals(ch chan os.Signal) {
	signal.Notify(ch,
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGHUP,
		syscall.SIGUSR1,
		syscall.SIGUSR2,
	)
}

func isTerminalSignal(sig os.Signal) bool {
	switch sig {
	case os.Interrupt, syscall.SIGTERM, syscall.SIGHUP:
		return true
	default:
		return false
	}
}
