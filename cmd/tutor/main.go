package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-tutor/src/config"
	"github.com/Protocol-Lattice/go-tutor/src/embed"
	"github.com/Protocol-Lattice/go-tutor/src/index"
	"github.com/Protocol-Lattice/go-tutor/src/materials"
	"github.com/Protocol-Lattice/go-tutor/src/models"
	"github.com/Protocol-Lattice/go-tutor/src/quiz"
	"github.com/Protocol-Lattice/go-tutor/src/security"
	"github.com/Protocol-Lattice/go-tutor/src/tutor"
)

type app struct {
	cfg     *config.Config
	tracker *tutor.Tracker
	indexer *materials.Indexer
	quiz    *quiz.Service
}

func main() {
	user := flag.String("user", "student", "User ID")
	subject := flag.String("subject", "general", "Subject")
	topic := flag.String("topic", "", "Topic (quiz, progress)")
	difficulty := flag.String("difficulty", "medium", "Question difficulty: easy|medium|hard")
	material := flag.String("material", "", "Material ID to ground questions in (quiz, ask)")
	flag.Parse()

	// Free-form values go into stores and prompts; strip injection
	// characters up front.
	*user = security.Sanitize(*user, security.MaxUsernameLength)
	*subject = security.Sanitize(*subject, security.MaxSubjectLength)
	*topic = security.Sanitize(*topic, security.MaxTopicLength)

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	a, cleanup, err := buildApp(ctx, cfg)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	defer cleanup()

	switch args[0] {
	case "ingest":
		err = a.ingest(ctx, *user, *subject, args[1:])
	case "materials":
		err = a.listMaterials(ctx, *user, *subject)
	case "ask":
		question := security.Sanitize(strings.Join(args[1:], " "), security.MaxPromptLength)
		err = a.ask(ctx, *subject, *material, question)
	case "quiz":
		err = a.runQuiz(ctx, *user, *subject, *topic, *difficulty, *material)
	case "progress":
		err = a.progress(ctx, *user, *subject)
	case "export":
		err = a.export(ctx, *user, *subject, args[1:])
	case "import":
		err = a.importProgress(ctx, *user, args[1:])
	case "reset":
		err = a.tracker.Reset(ctx, *user)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tutor [flags] <command>

commands:
  ingest <file>...   index study materials
  materials          list indexed materials
  ask <question>     answer a question from a material (-material)
  quiz               run an interactive quiz session (-topic required)
  progress           show mastery per topic and the study streak
  export <file>      write progress and sessions to a JSON file
  import <file>      merge progress from a JSON file, keeping higher mastery
  reset              wipe all progress for the user`)
	flag.PrintDefaults()
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Chunk index backend.
	var chunkIndex index.ChunkIndex
	switch {
	case cfg.PostgresDSN != "":
		px, err := index.NewPostgresIndex(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, cleanup, err
		}
		if err := px.CreateSchema(ctx); err != nil {
			px.Close()
			return nil, cleanup, err
		}
		cleanups = append(cleanups, px.Close)
		chunkIndex = px
	case cfg.MongoURI != "":
		mi, err := index.NewMongoIndex(ctx, cfg.MongoURI, "tutor", "chunks")
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { mi.Close() })
		chunkIndex = mi
	default:
		chunkIndex = index.NewInMemoryIndex()
	}

	// Progress and material storage.
	var store tutor.Store
	var matStore materials.MaterialStore
	switch {
	case cfg.PostgresDSN != "":
		ps, err := tutor.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, ps.Close)
		store = ps

		pm, err := materials.NewPostgresMaterialStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, pm.Close)
		matStore = pm
	case cfg.SQLitePath != "":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, cleanup, err
		}
		ss, err := tutor.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { ss.Close() })
		store = ss

		ms, err := materials.NewSQLiteMaterialStore(cfg.SQLitePath)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { ms.Close() })
		matStore = ms
	default:
		store = tutor.NewInMemoryStore()
		matStore = materials.NewInMemoryMaterialStore()
	}

	embedder := embed.NewCachedEmbedder(
		embed.AutoEmbedder(cfg.EmbedProvider, cfg.EmbedModel, cfg.OllamaHost), 4096, time.Hour)

	indexer := materials.NewIndexer(matStore, chunkIndex, embedder)
	indexer.ChunkSize = cfg.ChunkSize
	indexer.ChunkOverlap = cfg.ChunkOverlap
	indexer.TopK = cfg.TopK
	indexer.MaxBytes = cfg.MaxUploadBytes
	indexer.MaxTextBytes = cfg.MaxTextBytes
	indexer.MinTextRunes = cfg.MinTextRunes
	indexer.Workers = cfg.EmbedWorkers

	agent, err := models.NewProvider(ctx, cfg.Provider, cfg.Model, cfg.OllamaHost)
	if err != nil {
		return nil, cleanup, err
	}
	// Responses cache to disk so repeated questions skip the model.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, cleanup, err
	}
	cached := models.NewCachedAgent(agent, 1024, 24*time.Hour, filepath.Join(cfg.DataDir, "llm_cache.json"))
	retrying := models.NewRetryAgent(cached, cfg.LLMAttempts, cfg.LLMBackoff)

	return &app{
		cfg:     cfg,
		tracker: tutor.NewTracker(store),
		indexer: indexer,
		quiz:    quiz.NewService(retrying),
	}, cleanup, nil
}

func (a *app) ingest(ctx context.Context, user, subject string, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("no files given")
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		m, err := a.indexer.Ingest(ctx, user, subject, filepath.Base(path), data)
		if err != nil {
			log.Printf("%s: %v", path, err)
			continue
		}
		// Keep the original alongside the index for re-processing.
		if err := os.WriteFile(filepath.Join(a.cfg.DataDir, m.StoredName), data, 0o644); err != nil {
			log.Printf("%s: keep original: %v", path, err)
		}
		fmt.Printf("%s  %s  %s  %d pages  %d chunks\n", m.ID, m.Filename, m.Status, m.PageCount, m.ChunkCount)
	}
	return nil
}

func (a *app) listMaterials(ctx context.Context, user, subject string) error {
	ms, err := a.indexer.List(ctx, user, subject)
	if err != nil {
		return err
	}
	for _, m := range ms {
		fmt.Printf("%s  %-10s %-30s %d pages  %d chunks\n", m.ID, m.Status, m.Filename, m.PageCount, m.ChunkCount)
	}
	return nil
}

func (a *app) ask(ctx context.Context, subject, materialID, question string) error {
	if question == "" {
		return fmt.Errorf("no question given")
	}
	studyContext := ""
	if materialID != "" {
		var err error
		studyContext, err = a.indexer.Context(ctx, materialID, question, a.cfg.TopK)
		if err != nil {
			return err
		}
	}
	answer, err := a.quiz.ExplainConcept(ctx, subject, question, studyContext)
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}

func (a *app) runQuiz(ctx context.Context, user, subject, topic, difficulty, materialID string) error {
	if topic == "" {
		suggested, ok, err := a.tracker.SuggestNextTopic(ctx, user, subject)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no topic given and nothing left to review; use -topic")
		}
		topic = suggested
		fmt.Printf("Reviewing weakest topic: %s\n", topic)
	}

	session, err := a.tracker.StartSession(ctx, user, subject, topic, difficulty)
	if err != nil {
		return err
	}

	in := bufio.NewScanner(os.Stdin)
	deadline := time.Now().Add(time.Duration(a.cfg.SessionMinutes) * time.Minute)
	for i := 0; i < a.cfg.QuestionsPerSession && time.Now().Before(deadline); i++ {
		studyContext := ""
		if materialID != "" {
			studyContext, err = a.indexer.Context(ctx, materialID, topic, a.cfg.TopK)
			if err != nil {
				return err
			}
		}
		q, err := a.quiz.GenerateQuestion(ctx, subject, topic, session.Difficulty, studyContext)
		if err != nil {
			return err
		}

		fmt.Printf("\nQ%d: %s\n", i+1, q.Question)
		for _, key := range []string{"A", "B", "C", "D"} {
			fmt.Printf("  %s) %s\n", key, q.Options[key])
		}
		fmt.Print("answer (A-D, or q to stop): ")
		if !in.Scan() {
			break
		}
		choice := strings.TrimSpace(in.Text())
		if strings.EqualFold(choice, "q") {
			break
		}

		verdict := q.CheckChoice(choice)
		mastery, err := a.tracker.RecordAnswer(ctx, session, verdict.Correct)
		if err != nil {
			return err
		}
		if verdict.Correct {
			fmt.Printf("correct. %s\n", verdict.Feedback)
		} else {
			fmt.Printf("not quite. %s\n", verdict.Feedback)
		}
		fmt.Printf("mastery of %s: %.0f%%\n", topic, mastery*100)
	}

	if err := a.tracker.CompleteSession(ctx, session); err != nil {
		return err
	}
	fmt.Printf("\nSession done: %d/%d correct (%.0f%%)\n", session.Correct, session.Answered, session.Accuracy())
	return nil
}

func (a *app) export(ctx context.Context, user, subject string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: export <file>")
	}
	// -subject takes a comma-separated list for multi-subject exports.
	subjects := strings.Split(subject, ",")
	for i := range subjects {
		subjects[i] = strings.TrimSpace(subjects[i])
	}
	raw, err := a.tracker.Export(ctx, user, subjects)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], raw, 0o644); err != nil {
		return err
	}
	fmt.Printf("exported progress for %s to %s\n", user, args[0])
	return nil
}

func (a *app) importProgress(ctx context.Context, user string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: import <file>")
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err := a.tracker.Import(ctx, user, raw); err != nil {
		return err
	}
	fmt.Printf("imported progress for %s from %s\n", user, args[0])
	return nil
}

func (a *app) progress(ctx context.Context, user, subject string) error {
	prog, err := a.tracker.Progress(ctx, user, subject)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %.0f%% overall, %d topics, %d mastered\n",
		prog.Subject, prog.OverallMastery*100, prog.TopicsStarted, prog.TopicsMastered)
	for _, tp := range prog.Topics {
		fmt.Printf("  %-25s %5.1f%%  %-10s practiced %d\n",
			tp.Topic, tp.Mastery*100, tp.Category, tp.TimesPracticed)
	}

	weak, err := a.tracker.WeakAreas(ctx, user, subject, 0)
	if err != nil {
		return err
	}
	if len(weak) > 0 {
		fmt.Println("needs review:")
		for _, w := range weak {
			fmt.Printf("  %-25s %5.1f%% (gap %.0f)\n", w.Topic, w.Mastery*100, w.Gap)
		}
	}

	streak, err := a.tracker.StudyStreak(ctx, user)
	if err != nil {
		return err
	}
	if streak.HasStudied {
		fmt.Printf("streak: %d days (best %d), last studied %s\n",
			streak.Current, streak.Longest, streak.LastStudy.Format("2006-01-02"))
	}
	return nil
}
