package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/galaxyproject/galaxy-params/internal/config"
	"github.com/galaxyproject/galaxy-params/internal/logging"
	"github.com/galaxyproject/galaxy-params/internal/metaexpand"
	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/security"
	"github.com/galaxyproject/galaxy-params/internal/service"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
	"github.com/galaxyproject/galaxy-params/pkg/client"
)

// local holds what a command needs to work without a server.
type local struct {
	app   *params.App
	close service.Closer
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newLocal(cmd *cobra.Command) (*local, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLoggerWithWriter(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, cmd.ErrOrStderr())
	app, closer, err := service.NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return &local{app: app, close: closer}, nil
}

func (l *local) loadTool(path string) (*params.Tool, error) {
	src, err := toolsource.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return params.NewTool(src, l.app)
}

// getClient returns a server client, or nil when no server is configured.
func getClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		return nil
	}
	token, _ := cmd.Flags().GetString("token")
	return client.NewClient(client.Config{BaseURL: server, Token: token, Timeout: 5 * time.Minute})
}

// readRequest reads a request document, JSON or YAML by extension. "-"
// reads JSON from stdin.
func readRequest(cmd *cobra.Command, path string) (map[string]interface{}, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}

	var request map[string]interface{}
	switch filepath.Ext(path) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("failed to parse request YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &request); err != nil {
			return nil, fmt.Errorf("failed to parse request JSON: %w", err)
		}
	}
	if request == nil {
		request = map[string]interface{}{}
	}
	return request, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInputsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inputs <tool>",
		Short: "Describe a tool and its initial state",
		Args:  cobra.ExactArgs(1),
		RunE:  runInputs,
	}
	cmd.Flags().Bool("workflow", false, "Build in workflow editing mode")
	return cmd
}

func runInputs(cmd *cobra.Command, args []string) error {
	workflow, _ := cmd.Flags().GetBool("workflow")
	if c := getClient(cmd); c != nil {
		d, err := c.BuildTool(cmd.Context(), args[0], workflow)
		if err != nil {
			return err
		}
		return printJSON(cmd, d)
	}

	l, err := newLocal(cmd)
	if err != nil {
		return err
	}
	defer l.close()
	tool, err := l.loadTool(args[0])
	if err != nil {
		return err
	}
	trans := params.NewTrans(cmd.Context(), l.app)
	trans.WorkflowBuildingMode = workflow
	return printJSON(cmd, tool.ToDict(trans, nil))
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <tool> <request>",
		Short: "Check a request against a tool",
		Long:  "Populate the tool state from a request file and report invalid parameters.",
		Args:  cobra.ExactArgs(2),
		RunE:  runCheck,
	}
	cmd.Flags().String("format", "", "Request format: legacy or 21.01")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	request, err := readRequest(cmd, args[1])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")

	if c := getClient(cmd); c != nil {
		s, err := c.CheckRequest(cmd.Context(), args[0], client.CheckRequest{Inputs: request, InputFormat: format})
		if err != nil {
			if apiErr, ok := err.(*client.APIError); ok && apiErr.Data != nil {
				printJSON(cmd, apiErr.Data)
			}
			return err
		}
		return printJSON(cmd, s)
	}

	l, err := newLocal(cmd)
	if err != nil {
		return err
	}
	defer l.close()
	tool, err := l.loadTool(args[0])
	if err != nil {
		return err
	}

	trans := params.NewTrans(cmd.Context(), l.app)
	populated := map[string]interface{}{}
	fieldErrors := map[string]interface{}{}
	opts := params.PopulateOptions{Format: params.InputFormat(format)}
	if err := params.PopulateState(trans, tool.Inputs, request, populated, fieldErrors, opts); err != nil {
		return err
	}
	if len(fieldErrors) > 0 {
		printJSON(cmd, fieldErrors)
		return fmt.Errorf("%d invalid parameters", len(fieldErrors))
	}
	basic, err := params.ParamsToBasic(tool.Inputs, populated, l.app, true)
	if err != nil {
		return err
	}
	return printJSON(cmd, basic)
}

func newExpandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand <tool> <request>",
		Short: "Expand a batch request into jobs",
		Long:  "Expand batch and collection selections into one parameter set per job.",
		Args:  cobra.ExactArgs(2),
		RunE:  runExpand,
	}
	cmd.Flags().String("format", "", "Request format: legacy or 21.01")
	cmd.Flags().Bool("persist", false, "Store and announce the jobs (server only)")
	return cmd
}

func runExpand(cmd *cobra.Command, args []string) error {
	request, err := readRequest(cmd, args[1])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	persist, _ := cmd.Flags().GetBool("persist")

	if c := getClient(cmd); c != nil {
		resp, err := c.ExpandRequest(cmd.Context(), args[0], client.ExpandRequest{
			Inputs:      request,
			InputFormat: format,
			Persist:     persist,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, resp)
	}
	if persist {
		return fmt.Errorf("--persist needs --server")
	}

	l, err := newLocal(cmd)
	if err != nil {
		return err
	}
	defer l.close()
	tool, err := l.loadTool(args[0])
	if err != nil {
		return err
	}

	trans := params.NewTrans(cmd.Context(), l.app)
	expansion, err := metaexpand.ExpandJobs(trans, tool, request, params.InputFormat(format))
	if err != nil {
		return err
	}
	if len(expansion.Errors) > 0 {
		printJSON(cmd, expansion.Errors)
		return fmt.Errorf("%d expanded jobs have invalid parameters", len(expansion.Errors))
	}
	resp := client.ExpandResponse{BatchID: uuid.New().String(), ToolID: tool.ID}
	for _, p := range expansion.Params {
		resp.Jobs = append(resp.Jobs, client.ExpandedJob{ID: uuid.New().String(), Params: p})
	}
	if m := expansion.Collections; m != nil {
		if s := m.Structure(); s != nil {
			resp.MappedOver = s.CollectionType
		}
	}
	return printJSON(cmd, resp)
}

func newJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show a persisted job (server only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(cmd)
			if c == nil {
				return fmt.Errorf("job needs --server")
			}
			job, err := c.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	}
}

func encoderFor(cmd *cobra.Command) (security.IDEncoder, error) {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		secret = cfg.Security.IDSecret
	}
	if secret == "" {
		return nil, fmt.Errorf("no id secret: use --secret or security.id_secret")
	}
	return service.NewEncoder(secret)
}

func newEncodeIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode-id <id>",
		Short: "Encode a database id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			enc, err := encoderFor(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc.EncodeID(id))
			return nil
		},
	}
	cmd.Flags().String("secret", "", "Id secret (defaults to security.id_secret)")
	return cmd
}

func newDecodeIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode-id <encoded-id>",
		Short: "Decode an encoded database id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := encoderFor(cmd)
			if err != nil {
				return err
			}
			id, err := enc.DecodeID(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().String("secret", "", "Id secret (defaults to security.id_secret)")
	return cmd
}
