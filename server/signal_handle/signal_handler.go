package signal_handle

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/Kyooooma/RMDB/common"
)

var IsStopped = false

// SetupSignalHandling marks the server stopped on SIGINT/SIGTERM and
// runs the shutdown callback so buffers and the catalog reach disk.
func SetupSignalHandling(shutdown func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		common.Logger.WithField("signal", sig.String()).Info("shutting down")
		IsStopped = true
		shutdown()
		os.Exit(0)
	}()
}
