package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/irampton/Lembas/internal/client"
	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/wire"
)

const connectTimeout = 10 * time.Second

// Runner holds the dependencies shared by every command action.
type Runner struct {
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	httpClient *http.Client
	opts       client.Options
}

// RunnerOpts configures a Runner. Zero values use the process defaults.
type RunnerOpts struct {
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	HTTPClient *http.Client
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	return &Runner{
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		httpClient: opts.HTTPClient,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range []func(*Runner) *cli.Command{
		listCommand, showCommand, saveCommand, deleteCommand, searchCommand, importCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// before resolves the global flags into session options.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		r.logger.SetLevel(log.DebugLevel)
	}

	var proto string
	switch cmd.String("protocol") {
	case "json":
		proto = wire.SubprotocolJSON
	case "cbor":
		proto = wire.SubprotocolCBOR
	default:
		return ctx, fmt.Errorf("unknown protocol %q", cmd.String("protocol"))
	}

	r.opts = client.Options{
		BaseURL:      cmd.String("server"),
		Subprotocols: []string{proto},
		HTTPClient:   r.httpClient,
		Logger:       slog.New(r.logger),
	}
	return ctx, nil
}

func (r *Runner) session() (*client.Session, error) {
	return client.New(r.opts)
}

// connect opens a session and waits for the initial listing.
func (r *Runner) connect(ctx context.Context) (*client.Session, error) {
	s, err := r.session()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if _, err := s.Connect(ctx); err != nil {
		return nil, err
	}
	if err := s.WaitReady(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("waiting for initial listing: %w", err)
	}
	r.logger.Debug("connected", "server", r.opts.BaseURL, "recipes", len(s.View().Recipes))
	return s, nil
}

// List prints every recipe.
func (r *Runner) List(ctx context.Context, cmd *cli.Command) error {
	s, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	recipes := s.View().Recipes
	if cmd.Bool("json") {
		return r.writeJSON(recipes)
	}
	return r.writeTable(recipes)
}

// Show prints one recipe from the listing.
func (r *Runner) Show(ctx context.Context, cmd *cli.Command) error {
	recipeID := cmd.StringArg("id")
	if recipeID == "" {
		return errors.New("a recipe id is required")
	}

	s, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	recipe, ok := s.Get(recipeID)
	if !ok {
		return fmt.Errorf("recipe %s not found", recipeID)
	}
	if cmd.Bool("json") {
		return r.writeJSON(recipe)
	}
	r.writeRecipe(recipe)
	return nil
}

// Save reads a recipe file and upserts it.
func (r *Runner) Save(ctx context.Context, cmd *cli.Command) error {
	raw, err := loadRecipeFile(cmd.String("file"), r.input)
	if err != nil {
		return err
	}

	s, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	saved, err := s.Save(ctx, raw)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(saved)
	}
	fmt.Fprintf(r.output, "Saved %s (%s)\n", saved.Title, saved.ID)
	return nil
}

// Delete removes a recipe by id.
func (r *Runner) Delete(ctx context.Context, cmd *cli.Command) error {
	recipeID := cmd.StringArg("id")
	if recipeID == "" {
		return errors.New("a recipe id is required")
	}

	s, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Delete(ctx, recipeID); err != nil {
		return err
	}
	fmt.Fprintf(r.output, "Deleted %s\n", recipeID)
	return nil
}

// Search runs a full-text query. It needs no realtime connection.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if strings.TrimSpace(query) == "" {
		return errors.New("a search query is required")
	}

	s, err := r.session()
	if err != nil {
		return err
	}

	results, err := s.Search(ctx, query, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(results)
	}
	return r.writeTable(results)
}

// Import sends free text to the server's importer and prints the draft,
// optionally saving it.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	text, err := readText(cmd.String("file"), r.input)
	if err != nil {
		return err
	}

	s, err := r.session()
	if err != nil {
		return err
	}

	r.logger.Info("importing", "chars", len(text))
	draft, err := s.Import(ctx, text)
	if err != nil {
		return err
	}

	if !cmd.Bool("save") {
		if cmd.Bool("json") {
			return r.writeJSON(draft)
		}
		r.writeRecipe(draftRecipe(*draft))
		return nil
	}

	var raw map[string]any
	if err := wire.Convert(draft, &raw); err != nil {
		return err
	}

	conn, err := r.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	saved, err := conn.Save(ctx, raw)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(saved)
	}
	fmt.Fprintf(r.output, "Saved %s (%s)\n", saved.Title, saved.ID)
	return nil
}

// Watch prints a summary line for every listing the server pushes until
// the context is cancelled.
func (r *Runner) Watch(ctx context.Context, _ *cli.Command) error {
	s, err := r.session()
	if err != nil {
		return err
	}

	updates, stop := s.Updates()
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	wasReady := false
	for {
		select {
		case v := <-updates:
			switch {
			case v.Ready:
				wasReady = true
				fmt.Fprintf(r.output, "%s  %d recipes\n", time.Now().Format(time.TimeOnly), len(v.Recipes))
			case wasReady && !v.Loading:
				wasReady = false
				r.logger.Warn("connection lost, waiting to resync")
			}
		case err := <-runErr:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (r *Runner) writeJSON(data any) error {
	enc := json.NewEncoder(r.output)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Runner) writeTable(recipes []domain.Recipe) error {
	if len(recipes) == 0 {
		fmt.Fprintln(r.output, "No recipes.")
		return nil
	}

	w := tabwriter.NewWriter(r.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTAGS\tINGREDIENTS\tSTEPS")
	for _, recipe := range recipes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			recipe.ID, recipe.Title, strings.Join(recipe.Tags, ","),
			len(recipe.Ingredients), len(recipe.Steps))
	}
	return w.Flush()
}

func (r *Runner) writeRecipe(recipe domain.Recipe) {
	out := r.output
	fmt.Fprintln(out, recipe.Title)
	if recipe.ID != "" {
		fmt.Fprintf(out, "  id: %s\n", recipe.ID)
	}
	if recipe.Author != "" {
		fmt.Fprintf(out, "  by %s\n", recipe.Author)
	}
	if len(recipe.Tags) > 0 {
		fmt.Fprintf(out, "  tags: %s\n", strings.Join(recipe.Tags, ", "))
	}
	if recipe.Description != "" {
		fmt.Fprintf(out, "\n%s\n", recipe.Description)
	}

	if len(recipe.Ingredients) > 0 {
		fmt.Fprintln(out, "\nIngredients:")
		for _, ing := range recipe.Ingredients {
			fmt.Fprintf(out, "  - %s\n", ingredientLine(ing))
		}
	}
	if len(recipe.Steps) > 0 {
		fmt.Fprintln(out, "\nSteps:")
		for i, step := range recipe.Steps {
			fmt.Fprintf(out, "  %d. %s\n", i+1, step)
		}
	}
	if recipe.Notes != "" {
		fmt.Fprintf(out, "\nNotes: %s\n", recipe.Notes)
	}
}

// ingredientLine renders "2 cup flour", skipping empty parts.
func ingredientLine(ing domain.Ingredient) string {
	parts := make([]string, 0, 3)
	if q := fmt.Sprint(ing.Quantity); ing.Quantity != nil && q != "" {
		parts = append(parts, q)
	}
	if ing.Unit != "" {
		parts = append(parts, ing.Unit)
	}
	if ing.Name != "" {
		parts = append(parts, ing.Name)
	}
	return strings.Join(parts, " ")
}

func draftRecipe(d domain.Draft) domain.Recipe {
	return domain.Recipe{
		Title:       d.Title,
		Description: d.Description,
		Author:      d.Author,
		Tags:        d.Tags,
		Ingredients: d.Ingredients,
		Steps:       d.Steps,
		Notes:       d.Notes,
	}
}
