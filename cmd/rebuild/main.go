package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/CCSDForge/episciences-front-next-sub002/internal/rebuild"
	"github.com/CCSDForge/episciences-front-next-sub002/internal/tenant"
	"github.com/CCSDForge/episciences-front-next-sub002/pkg/config"
	"github.com/CCSDForge/episciences-front-next-sub002/pkg/logger"
)

// rebuild regenerates a single resource (or the full catalog) for one
// journal by scoping the site-generation build through environment
// targeting. Structured JSON events go to stdout; raw build output is
// passed through.
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses the arguments and drives one executor run. Request
// validation is left to the executor so that a bad invocation still
// produces the same structured events on stdout as any other rejected
// job; the usage text is appended on stderr for the human caller.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rebuild", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	journal := fs.String("journal", "", "journal code (required)")
	kind := fs.String("type", "", "resource kind: article|volume|section|static-page|full (required)")
	id := fs.String("id", "", "resource id (required for article, volume, section)")
	page := fs.String("page", "", "page name (required for static-page)")
	if err := fs.Parse(args); err != nil {
		return rebuild.ExitUsage
	}

	cfg := config.LoadRebuildConfig()
	log := logger.New("rebuild", logger.ParseLevel(config.GetString("LOG_LEVEL", "warn")))

	desc := rebuild.Descriptor{
		Journal:  *journal,
		Kind:     rebuild.Kind(*kind),
		ID:       *id,
		PageName: *page,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tenants := tenant.NewConfigLoader(cfg.TenantEnvDir)
	executor := rebuild.New(cfg, tenants, log)
	result := executor.Run(ctx, desc, rebuild.NewJSONEmitter(stdout))
	if result.ExitCode == rebuild.ExitUsage {
		usage(stderr)
	}
	return result.ExitCode
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage: rebuild --journal <code> --type <kind> [--id <id>] [--page <name>]

Kinds:
  article      rebuild one article (--id required)
  volume       rebuild one volume (--id required)
  section      rebuild one section (--id required)
  static-page  rebuild one static page (--page required)
  full         rebuild the journal's entire site

Exit codes: 0 success, 1 build/process error, 2 API data error, 3 invalid arguments or configuration.
`)
}
