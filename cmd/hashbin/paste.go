package main

import (
	"fmt"
	"time"

	"hashbin/svc/svc"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func pasteInfo(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("paste info: at least one hashid is required", 2)
	}
	e := envFrom(c)
	out := c.App.Writer
	for _, id := range c.Args().Slice() {
		p, err := e.store.Query(c.Context, id)
		if err != nil {
			return errors.Wrapf(err, "query %s", id)
		}
		if p == nil {
			fmt.Fprintf(out, "%s: not found\n", id)
			continue
		}
		fmt.Fprintf(out, "%s\n", id)
		fmt.Fprintf(out, "  mime:      %s\n", p.Mime)
		fmt.Fprintf(out, "  created:   %s (%s)\n", p.Timestamp.Format(time.RFC3339), humanize.Time(p.Timestamp))
		if p.Sunset != nil {
			fmt.Fprintf(out, "  sunset:    %s\n", p.Sunset.Format(time.RFC3339))
		}
		if p.IP != "" {
			fmt.Fprintf(out, "  ip:        %s\n", p.IP)
		}
		if c.Bool("data") {
			fmt.Fprintf(out, "  data:      %s\n", humanize.IBytes(uint64(len(p.Data))))
			fmt.Fprintf(out, "%s\n", p.Data)
		} else {
			fmt.Fprintf(out, "  data:      %s (--data to print)\n", humanize.IBytes(uint64(len(p.Data))))
		}
		if !p.Verify() {
			fmt.Fprintf(out, "WARNING: %s does not match the digest of its data\n", id)
		}
	}
	return nil
}

// pasteRemove goes through the paste service so a shared Redis cache, when
// configured, drops the entry too.
func pasteRemove(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("paste remove: at least one hashid is required", 2)
	}
	e := envFrom(c)
	var l2 svc.PasteCache
	if rdb, _ := openRedis(e); rdb != nil {
		defer rdb.Close()
		l2 = rdb
	}
	p := svc.NewPaste(e.store, nil, l2, e.cfg)
	out := c.App.Writer
	for _, id := range c.Args().Slice() {
		found, err := p.Delete(c.Context, id)
		if err != nil {
			return errors.Wrapf(err, "remove %s", id)
		}
		if found {
			fmt.Fprintf(out, "%s: removed\n", id)
		} else {
			fmt.Fprintf(out, "%s: not found\n", id)
		}
	}
	return nil
}
