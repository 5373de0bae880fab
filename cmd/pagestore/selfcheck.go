package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgecomet/pagestore/internal/common/htmlprocessor"
	"github.com/edgecomet/pagestore/internal/store"
	"github.com/edgecomet/pagestore/internal/web"
)

const (
	selfCheckTitle = "pagestore self-check"
	selfCheckHTML  = `<!DOCTYPE html><html><head><title>self-check</title></head><body><p>self-check</p></body></html>`
	selfCheckEdit  = `<!DOCTYPE html><html><head><title>self-check</title></head><body><p>self-check updated</p></body></html>`
)

func newSelfCheckCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Run a write, render and delete round trip on a scratch page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newAdminRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()
			return runSelfCheck(cmd.OutOrStdout(), rt.store, rt.logger.Logger)
		},
	}
}

// runSelfCheck exercises every write path of st on a scratch page and
// removes the page again, so the index ends up as it started.
func runSelfCheck(out io.Writer, st *store.Store, logger *zap.Logger) (err error) {
	step := func(name string) {
		fmt.Fprintf(out, "ok   %s\n", name)
	}

	id, created, err := st.CreateAutoID(store.PageMeta{
		SEO: store.SeoMeta{SeoTitle: selfCheckTitle, Description: "scratch page"},
	}, selfCheckHTML)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	step("create " + id)

	deleted := false
	defer func() {
		if deleted {
			return
		}
		if cleanupErr := st.Delete(id); cleanupErr != nil {
			logger.Warn("Failed to remove self-check page", zap.String("page_id", id), zap.Error(cleanupErr))
			err = errors.Join(err, fmt.Errorf("cleanup: %w", cleanupErr))
		}
	}()

	meta, html, err := st.Load(id)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	if html != selfCheckHTML || meta.PageUID != created.PageUID {
		return fmt.Errorf("load: page %s does not match what was written", id)
	}
	step("load")

	head, err := htmlprocessor.InspectHead(web.RenderPage(meta, html))
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if len(head.Titles) != 1 || head.Title() != selfCheckTitle || head.Description() != meta.SEO.Description {
		return fmt.Errorf("render: page %s head has titles %q and description %q", id, head.Titles, head.Description())
	}
	if head.NoIndex {
		return fmt.Errorf("render: page %s is blocked by a robots meta tag", id)
	}
	step("render")

	updated, err := st.UpdateHTML(id, selfCheckEdit)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if updated.PageUID != created.PageUID || updated.CreatedAt != created.CreatedAt {
		return fmt.Errorf("update: page %s lost its uid or created_at", id)
	}
	step("update")

	resolved, ok, err := st.ResolveIDByUID(created.PageUID)
	if err != nil {
		return fmt.Errorf("resolve uid: %w", err)
	}
	if !ok || resolved != id {
		return fmt.Errorf("resolve uid: %s resolved to %q", created.PageUID, resolved)
	}
	step("resolve uid")

	if err := st.Delete(id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	deleted = true
	if _, _, err := st.Load(id); !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete: page %s still loadable: %v", id, err)
	}
	step("delete")

	report, err := st.Verify()
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !report.Consistent() {
		return fmt.Errorf("verify: index inconsistent after self-check")
	}
	step("verify")

	_, err = fmt.Fprintln(out, "Self-check passed")
	return err
}
