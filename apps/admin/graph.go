package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// validateGraph checks the stored graph of domain and prints its topological order.
func (cli *commandLine) validateGraph(ctx context.Context, domain string) error {
	g, err := cli.skillRepo.GetGraph(ctx, domain)
	if err != nil {
		return err
	}
	if err = g.Validate(); err != nil {
		return errors.Wrapf(err, "skill graph %s", domain)
	}
	ids := make([]string, 0, len(g.Skills))
	for _, s := range g.Skills {
		ids = append(ids, s.ID)
	}
	fmt.Fprintf(cli.out, "%s: %d skills, %d edges\n", domain, len(g.Skills), len(g.Edges))
	for i, id := range g.TopoOrder(ids) {
		fmt.Fprintf(cli.out, "%3d. %s\n", i+1, id)
	}
	return nil
}

func (cli *commandLine) reindex(ctx context.Context) error {
	n, err := cli.lessonSvc.Reindex(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "indexed %d lessons\n", n)
	return nil
}
