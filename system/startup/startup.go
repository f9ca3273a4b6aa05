package startup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/minisplit-coordinator/internal/config"
)

const (
	defaultUser    = "root"
	defaultWorkdir = "/var/lib/minisplit-coordinator"
)

// ServiceUnit renders the systemd unit for the coordinator daemon.
func ServiceUnit(svc config.Service, configFile string) string {
	user := svc.User
	if user == "" {
		user = defaultUser
	}
	workdir := svc.Workdir
	if workdir == "" {
		workdir = defaultWorkdir
	}
	if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(workdir, configFile)
	}

	return fmt.Sprintf(`[Unit]
Description=Mini-split coordinator
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=%s
WorkingDirectory=%s
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s --config-file %s
Restart=on-failure
RestartSec=5s
KillSignal=SIGTERM
TimeoutStopSec=30s

[Install]
WantedBy=multi-user.target
`, user, workdir, svc.ExecPath, configFile)
}

// InstallService writes the unit file to svc.UnitPath. Enabling it is left to
// systemctl.
func InstallService(svc config.Service, configFile string) error {
	if svc.UnitPath == "" {
		return fmt.Errorf("service.unit_path is not configured")
	}
	if svc.ExecPath == "" {
		return fmt.Errorf("service.exec_path is not configured")
	}
	if err := os.WriteFile(svc.UnitPath, []byte(ServiceUnit(svc, configFile)), 0644); err != nil {
		return fmt.Errorf("write unit %s: %w", svc.UnitPath, err)
	}

	log.Info().Str("unit", svc.UnitPath).Msg("Installed systemd unit")
	return nil
}
