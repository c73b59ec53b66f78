package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/smazurov/framecast/pkg/framecast"
	"github.com/spf13/cobra"
)

// CreateTopCmd creates the top command, a live terminal view of channel
// metadata. It attaches as a client, so it is counted like any consumer.
func CreateTopCmd(channel ChannelConfig) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Live view of frame rate and clients of a channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := channel()
			client, err := framecast.NewClient(cfg)
			if err != nil {
				return err
			}
			defer client.Disconnect()

			m := newTopModel(cfg.Channel, interval, client)
			_, err = tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Refresh interval")
	return cmd
}

var (
	topTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	topLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(10)

	topValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	topLiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	topDownStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	topBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)

	topHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// infoSource is the part of *framecast.Client the view polls.
type infoSource interface {
	IsConnected() bool
	Connect() error
	Disconnect() error
	FrameInfo() (framecast.FrameInfo, error)
	ServerAlive() bool
}

type sampleMsg struct {
	at   time.Time
	info framecast.FrameInfo
	err  error
}

type topModel struct {
	channel  string
	interval time.Duration
	client   infoSource

	connected bool
	info      framecast.FrameInfo
	lastErr   error
	fps       float64
	prev      *sampleMsg
}

func newTopModel(channel string, interval time.Duration, client infoSource) topModel {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return topModel{channel: channel, interval: interval, client: client}
}

func (m topModel) Init() tea.Cmd {
	return m.sample
}

// sample connects if needed and reads the header.
func (m topModel) sample() tea.Msg {
	now := time.Now()
	if m.client.IsConnected() && !m.client.ServerAlive() {
		m.client.Disconnect()
	}
	if !m.client.IsConnected() {
		if err := m.client.Connect(); err != nil {
			return sampleMsg{at: now, err: err}
		}
	}
	info, err := m.client.FrameInfo()
	return sampleMsg{at: now, info: info, err: err}
}

func (m topModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg {
		return m.sample()
	})
}

func (m topModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case sampleMsg:
		m = m.apply(msg)
		return m, m.tick()
	}
	return m, nil
}

// apply folds a sample into the model. The rate is derived from the frame
// number delta between two samples of the same producer.
func (m topModel) apply(s sampleMsg) topModel {
	if s.err != nil {
		m.connected = false
		m.lastErr = s.err
		m.fps = 0
		m.prev = nil
		return m
	}
	m.connected = true
	m.lastErr = nil
	if m.prev != nil && s.info.FrameNumber >= m.prev.info.FrameNumber {
		if dt := s.at.Sub(m.prev.at).Seconds(); dt > 0 {
			m.fps = float64(s.info.FrameNumber-m.prev.info.FrameNumber) / dt
		}
	}
	m.info = s.info
	m.prev = &s
	return m
}

func (m topModel) View() string {
	var b strings.Builder
	b.WriteString(topTitleStyle.Render("framecast · "+m.channel) + "\n\n")

	row := func(label, value string) {
		b.WriteString(topLabelStyle.Render(label) + topValueStyle.Render(value) + "\n")
	}
	if !m.connected {
		state := "waiting for producer"
		if m.lastErr != nil {
			state += " (" + m.lastErr.Error() + ")"
		}
		row("state", topDownStyle.Render(state))
	} else {
		g := m.info.Geometry
		row("state", topLiveStyle.Render(fmt.Sprintf("live, server pid %d", m.info.ServerPID)))
		row("geometry", fmt.Sprintf("%dx%d %s", g.Width, g.Height, g.Format))
		row("frame", fmt.Sprintf("%d", m.info.FrameNumber))
		row("rate", fmt.Sprintf("%.1f fps", m.fps))
		// Exclude our own registration.
		row("clients", fmt.Sprintf("%d", max(m.info.ClientCount-1, 0)))
	}

	return topBoxStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n" +
		topHelpStyle.Render("q quit") + "\n"
}
