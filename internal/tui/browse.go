// Package tui is the interactive terminal browser behind `qcops browse`.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/leapstack-labs/qcops/internal/cqa"
	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Tab identifies one of the browser's lists.
type Tab int

// Browser tabs.
const (
	TabLots Tab = iota
	TabDeviations
	TabPartners
	tabCount
)

func (t Tab) String() string {
	switch t {
	case TabLots:
		return "Lots"
	case TabDeviations:
		return "Deviations"
	case TabPartners:
		return "Partners"
	}
	return "?"
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	activeTab   = lipgloss.NewStyle().Bold(true).Underline(true).Padding(0, 1)
	inactiveTab = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(0, 1)
	detailStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is the bubbletea model of the browser.
type Model struct {
	snap   *dataset.Snapshot
	tab    Tab
	tables [tabCount]table.Model
	// rows holds the unfiltered rows of each tab.
	rows [tabCount][]table.Row

	filter    textinput.Model
	filtering bool

	detail string
	width  int
	height int
}

// New builds a browser over snap.
func New(snap *dataset.Snapshot) Model {
	m := Model{snap: snap}

	m.rows[TabLots] = lotRows(snap.Lots())
	m.rows[TabDeviations] = deviationRows(snap.Deviations())
	m.rows[TabPartners] = partnerRows(snap.Partners())

	m.tables[TabLots] = newTable([]table.Column{
		{Title: "Lot", Width: 20}, {Title: "Stage", Width: 16}, {Title: "Partner", Width: 18},
		{Title: "Status", Width: 20}, {Title: "TAT/SLA", Width: 8},
	}, m.rows[TabLots])
	m.tables[TabDeviations] = newTable([]table.Column{
		{Title: "ID", Width: 8}, {Title: "Lot", Width: 20}, {Title: "Type", Width: 10},
		{Title: "Status", Width: 20}, {Title: "Age", Width: 5}, {Title: "Root cause", Width: 18},
	}, m.rows[TabDeviations])
	m.tables[TabPartners] = newTable([]table.Column{
		{Title: "Partner", Width: 18}, {Title: "Role", Width: 5}, {Title: "Specialty", Width: 26},
		{Title: "Location", Width: 16}, {Title: "SLA", Width: 5},
	}, m.rows[TabPartners])

	fi := textinput.New()
	fi.Placeholder = "filter..."
	fi.CharLimit = 40
	fi.Width = 30
	m.filter = fi

	m.focus()
	return m
}

func newTable(cols []table.Column, rows []table.Row) table.Model {
	return table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithHeight(15),
	)
}

func lotRows(lots []*core.Lot) []table.Row {
	rows := make([]table.Row, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, table.Row{
			l.ID, l.Stage.String(), l.Partner, string(l.Status),
			fmt.Sprintf("%d/%d", l.ActualTATDays, l.SLADays),
		})
	}
	return rows
}

func deviationRows(devs []*core.Deviation) []table.Row {
	rows := make([]table.Row, 0, len(devs))
	for _, d := range devs {
		rows = append(rows, table.Row{d.ID, d.LotID, string(d.Type), string(d.Status), strconv.Itoa(d.AgeDays), d.RootCause})
	}
	return rows
}

func partnerRows(partners []core.Partner) []table.Row {
	rows := make([]table.Row, 0, len(partners))
	for _, p := range partners {
		rows = append(rows, table.Row{p.Name, string(p.Role), p.Specialty, p.Location, strconv.Itoa(p.SLADays)})
	}
	return rows
}

// Tab returns the visible tab.
func (m Model) Tab() Tab { return m.tab }

// Detail returns the text of the open detail pane, if any.
func (m Model) Detail() string { return m.detail }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

func (m *Model) focus() {
	for i := range m.tables {
		if Tab(i) == m.tab {
			m.tables[i].Focus()
		} else {
			m.tables[i].Blur()
		}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		for i := range m.tables {
			m.tables[i].SetHeight(max(5, msg.Height-10))
		}
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			switch msg.String() {
			case "esc":
				m.filtering = false
				m.filter.Blur()
				m.filter.SetValue("")
				m.applyFilter()
				return m, nil
			case "enter":
				m.filtering = false
				m.filter.Blur()
				return m, nil
			}
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.tab = (m.tab + 1) % tabCount
			m.detail = ""
			m.focus()
			m.applyFilter()
			return m, nil
		case "shift+tab":
			m.tab = (m.tab + tabCount - 1) % tabCount
			m.detail = ""
			m.focus()
			m.applyFilter()
			return m, nil
		case "/":
			m.filtering = true
			m.filter.Focus()
			return m, textinput.Blink
		case "enter":
			m.detail = m.describeSelected()
			return m, nil
		case "esc":
			m.detail = ""
			return m, nil
		}
	}

	m.tables[m.tab], cmd = m.tables[m.tab].Update(msg)
	return m, cmd
}

// applyFilter keeps the rows of the visible tab containing the filter text
// in any column.
func (m *Model) applyFilter() {
	needle := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	all := m.rows[m.tab]
	if needle == "" {
		m.tables[m.tab].SetRows(all)
		return
	}
	var kept []table.Row
	for _, r := range all {
		if strings.Contains(strings.ToLower(strings.Join(r, " ")), needle) {
			kept = append(kept, r)
		}
	}
	m.tables[m.tab].SetRows(kept)
	m.tables[m.tab].SetCursor(0)
}

func (m Model) describeSelected() string {
	row := m.tables[m.tab].SelectedRow()
	if len(row) == 0 {
		return ""
	}
	switch m.tab {
	case TabLots:
		return m.describeLot(row[0])
	case TabDeviations:
		return m.describeLot(row[1])
	case TabPartners:
		return m.describePartner(row[0])
	}
	return ""
}

func (m Model) describeLot(id string) string {
	lot, ok := m.snap.Lot(id)
	if !ok {
		return "unknown lot " + id
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s · %s · %s\n", titleStyle.Render(lot.ID), lot.Stage, lot.Partner, lot.Status)

	if lot.Stage == core.StageDrugProduct {
		chain, err := m.snap.Resolve(lot.ID)
		var inc *core.LineageIncompleteError
		switch {
		case errors.As(err, &inc):
			b.WriteString(warnStyle.Render("Lineage incomplete: "+inc.Reason) + "\n")
		case err != nil:
			b.WriteString(warnStyle.Render(err.Error()) + "\n")
		default:
			fmt.Fprintf(&b, "%s + %s -> %s -> %s\n",
				chain.Antibody.ID, chain.Oligo.ID, chain.DrugSubstance.ID, chain.DrugProduct.ID)
			if rows, err := m.snap.Cascade(chain.DrugSubstance.ID, chain.DrugProduct.ID); err == nil {
				for _, r := range rows {
					fmt.Fprintf(&b, "  %-16s DS %-7s DP %-7s %s\n", r.Attribute, num(r.DSResult), num(r.DPResult), trend(r.Trend))
				}
			}
		}
	} else {
		for _, p := range m.snap.Index().Parents(lot.ID) {
			fmt.Fprintf(&b, "  made from %s\n", p.ID)
		}
		for _, c := range m.snap.Index().Children(lot.ID) {
			fmt.Fprintf(&b, "  used in %s\n", c.ID)
		}
	}

	for _, d := range m.snap.DeviationsForLot(lot.ID) {
		fmt.Fprintf(&b, "  %s %s %s (%dd)\n", d.ID, d.Type, d.Status, d.AgeDays)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) describePartner(name string) string {
	p, ok := m.snap.Partner(name)
	if !ok {
		return "unknown partner " + name
	}
	lots := m.snap.FilterLots(dataset.LotFilter{Partner: name})
	onTime := 0
	for _, l := range lots {
		if l.OnTime() {
			onTime++
		}
	}
	return fmt.Sprintf("%s  %s · %s\n  %d lots, %d within the %d day SLA",
		titleStyle.Render(p.Name), p.Specialty, p.Location, len(lots), onTime, p.SLADays)
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func trend(t cqa.Trend) string {
	if t == cqa.TrendingHigh || t == cqa.TrendingLow {
		return warnStyle.Render(string(t))
	}
	return string(t)
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("qcops browse") + "  ")
	for i := range tabCount {
		if i == m.tab {
			b.WriteString(activeTab.Render(i.String()))
		} else {
			b.WriteString(inactiveTab.Render(i.String()))
		}
	}
	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View() + "\n")
	}
	b.WriteString(m.tables[m.tab].View() + "\n")
	if m.detail != "" {
		b.WriteString(detailStyle.Render(m.detail) + "\n")
	}
	b.WriteString(helpStyle.Render("tab switch · / filter · enter details · esc close · q quit"))
	return b.String()
}

// Run starts the browser on the terminal and blocks until the user quits
// or ctx ends.
func Run(ctx context.Context, snap *dataset.Snapshot, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(
		New(snap),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
