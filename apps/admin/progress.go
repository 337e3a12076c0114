package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/trezcool/beet/core/auth"
)

func (cli *commandLine) token(learner string) error {
	claims, err := auth.NewClaims(cli.conf, learner)
	if err != nil {
		return err
	}
	token, err := auth.GenerateToken(cli.conf, claims)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

// show prints a table on a terminal, JSON otherwise.
func (cli *commandLine) show(learner string) error {
	ctx := context.Background()
	entries, err := cli.svc.Entries(ctx, learner)
	if err != nil {
		return err
	}
	mods, err := cli.svc.Modules(ctx, learner)
	if err != nil {
		return err
	}

	if !isTerminalFunc() {
		enc := json.NewEncoder(cli.out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"learner": learner, "progress": entries, "modules": mods})
	}

	tw := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tPROGRESS\tUNLOCKED\tNOTE")
	for _, mod := range mods {
		var note string
		if mod.Status.Stale {
			note = "completion flag is stale"
		}
		fmt.Fprintf(tw, "%s\t%d/%d (%d%%)\t%t\t%s\n", mod.ID, mod.Status.Count, mod.Status.Total, mod.Status.Percent, mod.Unlocked, note)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "KEY\tKIND\tVALUE\tUPDATED")
	for _, e := range entries {
		val, err := json.Marshal(e.Value)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Key, e.Kind, val, e.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func (cli *commandLine) heal(learner string) error {
	statuses := cli.svc.Heal(context.Background(), learner)
	healed := make([]string, 0)
	for _, status := range statuses {
		if status.Healed {
			healed = append(healed, status.Gate)
		}
	}
	if len(healed) == 0 {
		fmt.Fprintln(cli.out, "nothing to heal")
		return nil
	}
	fmt.Fprintln(cli.out, "cleared completion flags: "+strings.Join(healed, ", "))
	return nil
}

func (cli *commandLine) reset(learner, key string) error {
	if err := cli.svc.Reset(context.Background(), learner, key); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s cleared\n", key)
	return nil
}
