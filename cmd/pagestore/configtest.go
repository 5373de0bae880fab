package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/edgecomet/pagestore/internal/store"
	"github.com/edgecomet/pagestore/internal/web"
)

func newConfigTestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config-test [page-url...]",
		Short: "Validate the configuration and show how page URLs resolve",
		Long: `Load and validate the configuration, print the effective settings with
defaults and environment overrides applied, then resolve each given page URL
against the store.

Examples:
  pagestore config-test -c configs/example/pagestore.yaml
  pagestore config-test "https://blog.example/pages/Hello%20World+3f9a0c1d2e4b5a69"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(opts, zap.NewNop())
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Configuration OK")
			fmt.Fprintln(out)

			encoder := yaml.NewEncoder(out)
			encoder.SetIndent(2)
			if err := encoder.Encode(cfg); err != nil {
				return fmt.Errorf("failed to print configuration: %w", err)
			}
			if err := encoder.Close(); err != nil {
				return err
			}
			if len(args) == 0 {
				return nil
			}

			rt, err := newAdminRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			failed := 0
			for _, raw := range args {
				if !printURLTestResult(out, rt.store, rt.config.Site.URL, raw) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d URLs did not resolve to a page", failed, len(args))
			}
			return nil
		},
	}
}

// pageRefFromURL extracts the page reference from an absolute URL or a path
func pageRefFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.HasPrefix(u.Path, web.PagesPrefix) {
		return "", fmt.Errorf("not a page URL, path must start with %s", web.PagesPrefix)
	}
	ref, ok := web.ParseIDFromSlug(strings.TrimPrefix(u.Path, web.PagesPrefix))
	if !ok {
		return "", errors.New("page URL has no page id")
	}
	return ref, nil
}

// printURLTestResult resolves raw the way the page server does and reports
// whether it names a stored page
func printURLTestResult(out io.Writer, st *store.Store, siteURL, raw string) bool {
	fmt.Fprintf(out, "\n=== %s ===\n", raw)

	ref, err := pageRefFromURL(raw)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %s\n", err)
		return false
	}
	id, err := web.ResolvePageID(st, ref)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %s\n", err)
		return false
	}
	meta, err := st.GetMeta(id)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %s\n", err)
		return false
	}

	resolvedBy := "page id"
	if id != ref {
		resolvedBy = "page uid"
	}
	fmt.Fprintf(out, "Page ID: %s\n", id)
	fmt.Fprintf(out, "Page UID: %s\n", meta.PageUID)
	fmt.Fprintf(out, "Resolved by: %s\n", resolvedBy)
	fmt.Fprintf(out, "Title: %s\n", meta.SEO.EffectiveTitle())
	fmt.Fprintf(out, "Views: %d\n", meta.ViewCount)
	if siteURL != "" {
		fmt.Fprintf(out, "Public URL: %s\n", web.FullURL(siteURL, meta.PageUID, meta.SEO.EffectiveTitle()))
	} else {
		fmt.Fprintf(out, "Public URL: %s\n", web.BuildPageURL(meta.PageUID, meta.SEO.EffectiveTitle()))
	}
	return true
}
