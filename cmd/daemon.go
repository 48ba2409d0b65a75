package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cygnusops/netdumpd/internal/bootstrap"
	"github.com/cygnusops/netdumpd/internal/config"
	"github.com/cygnusops/netdumpd/internal/dumpd"
	"github.com/cygnusops/netdumpd/internal/logging"
	"github.com/cygnusops/netdumpd/internal/metrics"
	"github.com/cygnusops/netdumpd/internal/sandbox"
)

var (
	bindAddr      string
	dumpDir       string
	notifyScript  string
	pidFile       string
	foreground    bool
	logFile       string
	metricsListen string
	adminSocket   string
	sandboxUID    int
	sandboxGID    int
)

// registerDaemonFlags attaches the source's -a/-d/-i/-P/-D flag
// surface, plus the ambient additions, to cmd.
func registerDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&bindAddr, "bind", "a", "0.0.0.0:6666", "bind address (ip:port)")
	cmd.Flags().StringVarP(&dumpDir, "dump-dir", "d", "/var/crash", "dump directory")
	cmd.Flags().StringVarP(&notifyScript, "notify", "i", "", "executable notification script")
	cmd.Flags().StringVarP(&pidFile, "pidfile", "P", "", "PID file path")
	cmd.Flags().BoolVarP(&foreground, "foreground", "D", false, "foreground/debug: log to stderr instead of syslog")
	cmd.Flags().StringVar(&logFile, "log-file", "", "when --foreground is set, rotate JSON logs to this file instead of stderr")

	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "optional Prometheus metrics listen address")
	cmd.Flags().StringVar(&adminSocket, "admin-socket", "", "optional admin control socket path (default <dump-dir>/.netdumpd.sock)")
	cmd.Flags().IntVar(&sandboxUID, "sandbox-uid", 0, "uid to drop privileges to after startup (0 = do not drop)")
	cmd.Flags().IntVar(&sandboxGID, "sandbox-gid", 0, "gid to drop privileges to after startup (0 = do not drop)")
}

func runDaemon() error {
	file, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.Init(logging.Config{Foreground: foreground, FilePath: logFile, Debug: foreground})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	dumpdCfg := dumpd.DefaultConfig()
	dumpdCfg.ClientTimeout = config.Duration(file.ClientTimeout, dumpdCfg.ClientTimeout)
	dumpdCfg.ClientTPass = config.Duration(file.ClientTPass, dumpdCfg.ClientTPass)
	if file.BufferSize > 0 {
		dumpdCfg.RecvBufferBytes = file.BufferSize
	}
	if file.MaxDumps > 0 {
		dumpdCfg.MaxDumps = file.MaxDumps
	}
	if file.MaxPayload > 0 {
		dumpdCfg.MaxPayload = file.MaxPayload
	}

	admin := adminSocket
	if admin == "" && file.AdminSocket != "" {
		admin = file.AdminSocket
	}
	if admin == "" {
		admin = dumpDir + "/.netdumpd.sock"
	}

	mListen := metricsListen
	if mListen == "" {
		mListen = file.MetricsListen
	}

	notifyTimeout := config.Duration(file.NotifyTimeout, 0)

	sbx := sandbox.Config{UID: sandboxUID, GID: sandboxGID}
	if !sbx.Enabled() {
		sbx = sandbox.Config{UID: file.SandboxUID, GID: file.SandboxGID}
	}

	opts := bootstrap.Options{
		BindAddr:      bindAddr,
		DumpDir:       dumpDir,
		NotifyScript:  notifyScript,
		NotifyTimeout: notifyTimeout,
		PIDFile:       pidFile,
		AdminSocket:   admin,
		Sandbox:       sbx,
		DumpdConfig:   dumpdCfg,
		Log:           log,
		Version:       version,
	}

	if mListen != "" {
		metricsServer := metrics.NewServer(mListen)
		ctx := context.Background()
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer metricsServer.Stop(ctx)
	}

	return bootstrap.Run(context.Background(), opts)
}
