package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dd0wney/posh-debugger/pkg/plan"
	"github.com/dd0wney/posh-debugger/pkg/telemetry"
)

var errQuit = errors.New("quit requested")

const consoleHelp = `commands:
  d, display   toggle echo of decoded telemetry lines
  s, sessions  list connected robots
  p, plan      show plan generation and dirty elements
  q, quit      stop the server
`

// runConsole reads operator commands until EOF or quit.
func runConsole(in io.Reader, out io.Writer, server *telemetry.Server, reg *plan.Registry) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "":
		case "d", "display":
			fmt.Fprintf(out, "display %s\n", onOff(server.ToggleDisplay()))
		case "s", "sessions":
			printSessions(out, server.Sessions())
		case "p", "plan":
			printPlan(out, reg.Current())
		case "q", "quit":
			return
		default:
			fmt.Fprint(out, consoleHelp)
		}
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func printSessions(out io.Writer, sessions []telemetry.SessionInfo) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREMOTE\tSTATE\tLINES\tMARKED\tDISPLAY")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.ID, s.RemoteAddr, s.State, s.LinesReceived, s.MarkedDirty, onOff(s.Display))
	}
	tw.Flush()
}

func printPlan(out io.Writer, g *plan.Graph) {
	fmt.Fprintf(out, "generation %d\n", g.Generation())
	for _, e := range g.DirtyElements() {
		fmt.Fprintf(out, "  dirty %s %s\n", e.Category(), e.Name())
	}
}
