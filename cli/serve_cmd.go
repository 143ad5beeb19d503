package main

import (
	"github.com/spf13/cobra"

	"github.com/vigil-sec/vigil/assist"
	"github.com/vigil-sec/vigil/core"
	"github.com/vigil-sec/vigil/server"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		allowed    []string
		configFile string
		docsDir    string
		llm        *llmFlags
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := a.logger()
			if err != nil {
				return err
			}

			file := assist.Settings{}
			if configFile != "" {
				project, err := core.LoadProjectConfig(".", configFile)
				if err != nil {
					return err
				}
				file = project.LLM
			}
			cfg, err := assist.ResolveConfig(file, llm.settings(a.debug))
			if err != nil {
				return err
			}
			docs, err := docResolver(docsDir, logger)
			if err != nil {
				return err
			}

			enricher := assist.NewEnricher(
				assist.WithRunLogger(logger),
				assist.WithScanner(core.NewScanner(core.WithLogger(logger))),
				assist.WithDocs(docs),
			)
			srv := server.New(version, allowed, &assist.LLMOptions{Config: cfg},
				server.WithLogger(logger),
				server.WithEnricher(enricher),
			)
			return srv.Serve()
		},
	}
	fs := cmd.Flags()
	llm = addLLMFlags(fs)
	fs.StringSliceVar(&allowed, "allow", nil, "restrict scans to these directories")
	fs.StringVarP(&configFile, "config-file", "c", "", "configuration file supplying the llm section")
	fs.StringVar(&docsDir, "docs-dir", "", "directory of background documents, replacing the built-in set")
	return cmd
}
