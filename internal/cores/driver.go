package cores

import (
	"fmt"
	"path/filepath"
	"sort"

	"tunnel-panel/internal/config"
	"tunnel-panel/internal/models"
	"tunnel-panel/internal/utils"

	"gorm.io/datatypes"
)

// PortClaim is a listening socket a tunnel needs on the panel host
type PortClaim struct {
	Proto string `json:"proto"`
	Port  int    `json:"port"`
}

func (p PortClaim) String() string {
	return fmt.Sprintf("%s/%d", p.Proto, p.Port)
}

/**
 * Driver knows how to turn a tunnel record of one core into a runnable config
 * @description
 * - Normalize fills defaults, recomputes derived fields and validates the spec
 * - Ports lists the sockets the tunnel binds, used for conflict detection
 * - Render produces the native config file content
 * - OneShot cores are applied by a command that exits (wg-quick up/down)
 */
type Driver interface {
	Name() string
	Normalize(t *models.Tunnel, cfg *config.AppConfig) error
	Ports(t *models.Tunnel) []PortClaim
	Render(t *models.Tunnel, cfg *config.AppConfig) ([]byte, error)
	ConfigFile(t *models.Tunnel) string
	OneShot() bool
}

// LaunchPlan is everything the runtime needs to bring a tunnel up
type LaunchPlan struct {
	TunnelID    string
	Title       string
	Core        string
	ConfigPath  string
	Config      []byte
	Command     string
	Args        []string
	Fallback    string
	DownCommand string
	DownArgs    []string
	OneShot     bool
	Ports       []PortClaim
}

// launchArgs are the fields usable in command templates
type launchArgs struct {
	TunnelID   string
	Name       string
	Core       string
	ConfigPath string
	DataDir    string
}

type Registry struct {
	drivers map[string]Driver
}

func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver)}
	for _, d := range drivers {
		r.drivers[d.Name()] = d
	}
	return r
}

// DefaultRegistry contains the cores managed by the panel
func DefaultRegistry() *Registry {
	return NewRegistry(&Xray{}, &Rathole{}, &Hysteria2{}, &WireGuard{})
}

func (r *Registry) Get(core string) (Driver, bool) {
	d, ok := r.drivers[core]
	return d, ok
}

// Managed reports whether the panel launches tunnels of this core
func (r *Registry) Managed(core string) bool {
	_, ok := r.drivers[core]
	return ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func specOf(t *models.Tunnel) Spec {
	if t.Spec == nil {
		t.Spec = datatypes.JSONMap{}
	}
	return Spec(t.Spec)
}

// Normalize applies the core driver; extension cores keep their spec as sent
func (r *Registry) Normalize(t *models.Tunnel, cfg *config.AppConfig) error {
	specOf(t)
	d, ok := r.drivers[t.Core]
	if !ok {
		return nil
	}
	return d.Normalize(t, cfg)
}

func (r *Registry) Ports(t *models.Tunnel) []PortClaim {
	d, ok := r.drivers[t.Core]
	if !ok {
		return nil
	}
	return d.Ports(t)
}

func (r *Registry) Render(t *models.Tunnel, cfg *config.AppConfig) ([]byte, error) {
	d, ok := r.drivers[t.Core]
	if !ok {
		return nil, fmt.Errorf("core %q is not managed by the panel", t.Core)
	}
	return d.Render(t, cfg)
}

/**
 * Build the launch plan of a tunnel
 * @param {*models.Tunnel} t - Normalized tunnel
 * @param {*config.AppConfig} cfg - Active configuration
 * @returns {*LaunchPlan} Rendered config plus templated command lines
 * @description
 * - Config lives in <data_dir>/<core>/<file>
 * - Command and args are text/template strings, see launchArgs
 * @example
 * plan, err := registry.Plan(tunnel, config.App())
 * // plan.Command = "xray", plan.Args = ["run", "-c", "/var/lib/tpanel/xray/<id>.json"]
 */
func (r *Registry) Plan(t *models.Tunnel, cfg *config.AppConfig) (*LaunchPlan, error) {
	d, ok := r.drivers[t.Core]
	if !ok {
		return nil, fmt.Errorf("core %q is not managed by the panel", t.Core)
	}
	cc, err := cfg.Core(t.Core)
	if err != nil {
		return nil, err
	}
	content, err := d.Render(t, cfg)
	if err != nil {
		return nil, err
	}
	args := launchArgs{
		TunnelID:   t.ID,
		Name:       t.Name,
		Core:       t.Core,
		ConfigPath: filepath.Join(cfg.DataDir, t.Core, d.ConfigFile(t)),
		DataDir:    cfg.DataDir,
	}
	plan := &LaunchPlan{
		TunnelID:   t.ID,
		Title:      t.Title(),
		Core:       t.Core,
		ConfigPath: args.ConfigPath,
		Config:     content,
		OneShot:    d.OneShot(),
		Ports:      d.Ports(t),
	}
	plan.Command, plan.Args, err = utils.GetCommandLine(cc.Command, cc.Args, args)
	if err != nil {
		return nil, fmt.Errorf("core %s launch settings are incorrect: %w", t.Core, err)
	}
	if cc.Fallback != "" {
		plan.Fallback, _, err = utils.GetCommandLine(cc.Fallback, nil, args)
		if err != nil {
			return nil, fmt.Errorf("core %s fallback command is incorrect: %w", t.Core, err)
		}
	}
	if plan.OneShot && cc.DownCommand != "" {
		plan.DownCommand, plan.DownArgs, err = utils.GetCommandLine(cc.DownCommand, cc.DownArgs, args)
		if err != nil {
			return nil, fmt.Errorf("core %s teardown settings are incorrect: %w", t.Core, err)
		}
	}
	return plan, nil
}
