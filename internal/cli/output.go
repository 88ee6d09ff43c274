package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/viralforge/storefront-identity/internal/application"
	"github.com/viralforge/storefront-identity/internal/domain"
)

func renderTable(w io.Writer, rows pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func renderSession(w io.Writer, view domain.SessionView) error {
	rows := pterm.TableData{
		{"Field", "Value"},
		{"Lifecycle", string(view.Lifecycle)},
	}
	if view.ID != "" {
		rows = append(rows,
			[]string{"ID", view.ID},
			[]string{"Email", view.Email},
			[]string{"Name", view.Name},
			[]string{"Administrator", strconv.FormatBool(view.IsAdmin)},
		)
	}
	if view.FailureReason != "" {
		rows = append(rows, []string{"Failure", view.FailureReason})
	}
	return renderTable(w, rows)
}

func renderProfile(w io.Writer, profile application.ProfileResponse) error {
	return renderTable(w, pterm.TableData{
		{"Field", "Value"},
		{"ID", profile.ID},
		{"Name", profile.Name},
		{"Email", profile.Email},
		{"Administrator", strconv.FormatBool(profile.IsAdmin)},
		{"Created", profile.CreatedAt.Format(time.RFC3339)},
		{"Updated", profile.UpdatedAt.Format(time.RFC3339)},
	})
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, pterm.Success.Sprintfln(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprint(w, pterm.Warning.Sprintfln(format, args...))
}
