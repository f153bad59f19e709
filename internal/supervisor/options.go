package supervisor

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/agentio/internal/agent"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/launch"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/agentio/internal/terminal"
	"go.uber.org/zap"
)

// Resolver locates the agent and the directory it runs in.
type Resolver interface {
	Executable() (string, error)
	WorkDir(requested string) (string, error)
}

// Options configures every session a Manager creates.
type Options struct {
	Resolver        Resolver
	Shell           string
	ResumeFlag      string
	InteractiveArgs []string
	HeadlessArgs    []string

	PollTimeout time.Duration
	ChunkSize   int

	QueueSize       int
	ScheduleTimeout time.Duration

	TeardownGrace time.Duration
	JoinTimeout   time.Duration

	// Conditioner is the default for requests that do not choose.
	Conditioner bool
	Geometry    terminal.Geometry

	// OnAgentSession is called once per session when the agent's own
	// session identifier is first captured.
	OnAgentSession func(session id.SessionID, agentID string)

	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// OptionsFromConfig maps loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Resolver:        agent.NewResolver(cfg.Agent.Binary, cfg.Agent.SearchPaths, cfg.Agent.WorkDir),
		Shell:           cfg.Agent.Shell,
		ResumeFlag:      cfg.Agent.ResumeFlag,
		InteractiveArgs: cfg.Agent.InteractiveArgs,
		HeadlessArgs:    cfg.Agent.HeadlessArgs,
		PollTimeout:     cfg.Pump.PollTimeout,
		ChunkSize:       cfg.Pump.ChunkSize,
		QueueSize:       cfg.Bridge.QueueSize,
		ScheduleTimeout: cfg.Bridge.ScheduleTimeout,
		TeardownGrace:   cfg.Supervisor.TeardownGrace,
		JoinTimeout:     cfg.Supervisor.TeardownJoinTimeout,
		Conditioner:     cfg.Supervisor.ConditionerEnabled,
		Geometry: terminal.Geometry{
			Rows: cfg.Supervisor.DefaultRows,
			Cols: cfg.Supervisor.DefaultCols,
		},
	}
}

func (o Options) withDefaults() Options {
	if o.Resolver == nil {
		o.Resolver = agent.NewResolver("claude", nil, "")
	}
	if o.Shell == "" {
		o.Shell = "/bin/sh"
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Second
	}
	if o.TeardownGrace <= 0 {
		o.TeardownGrace = time.Second
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = 2 * time.Second
	}
	if !o.Geometry.Valid() {
		o.Geometry = terminal.Geometry{Rows: 24, Cols: 80}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) invocation(exe string, mode launch.Mode) agent.Invocation {
	args := o.InteractiveArgs
	if mode == launch.ModeHeadless {
		args = o.HeadlessArgs
	}
	return agent.Invocation{Executable: exe, ResumeFlag: o.ResumeFlag, Args: args}
}
