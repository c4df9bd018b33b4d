package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PixelParasite101/Packing-Lab/scenario"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "packlab.db", "SQLite database path")
	run := flag.String("run", "", "run a scenario headless and print its report")
	record := flag.Bool("record", false, "with -run: store the hash as the scenario baseline")
	check := flag.Bool("check", false, "with -run: fail when the hash drifts from the baseline")
	grid := flag.Bool("grid", false, "with -run: force the spatial hash broadphase")
	pairGate := flag.Bool("pair-gate", false, "run the spatial hash pair reduction gate")
	list := flag.Bool("list", false, "list built-in scenarios")
	baselines := flag.Bool("baselines", false, "list recorded baselines")
	operator := flag.String("operator", "", "create an operator account, user:pass")
	sleepEff := flag.Bool("sleep-eff", false, "measure sleeping efficiency against the stored baseline")
	sleepEffUpdate := flag.Bool("sleep-eff-update", false, "with -sleep-eff: store the measurement as a new baseline version")
	miniEvals := flag.Bool("mini-evals", false, "run the quick invariance suite and exit non-zero on failure")
	flag.Parse()

	if *miniEvals {
		if !runMiniEvals() {
			os.Exit(1)
		}
		return
	}

	if *list {
		for _, sc := range scenario.All() {
			fmt.Printf("%-16s %4d frames  %s\n", sc.Name, sc.Frames, sc.Description)
		}
		return
	}

	db, err := OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("open db %s: %v", *dbPath, err)
	}
	defer db.Close()

	tel := NewTelemetry(db)

	switch {
	case *operator != "":
		err = createOperator(db, *operator)
	case *run != "":
		err = runHeadless(db, tel, *run, *grid, *record, *check)
	case *pairGate:
		err = runPairGate(db)
	case *sleepEff:
		err = runSleepEff(db, *sleepEffUpdate)
	case *baselines:
		err = listBaselines(db)
	default:
		err = serve(*addr, db, tel)
	}
	tel.Stop()
	if err != nil {
		db.Close()
		log.Fatal(err)
	}
}

func createOperator(db *DB, account string) error {
	user, pass, ok := strings.Cut(account, ":")
	if !ok {
		return errors.New("-operator wants user:pass")
	}
	id, err := NewAuth(db).CreateOperator(user, pass)
	if err != nil {
		return err
	}
	log.Printf("operator %q created (id %d)", user, id)
	return nil
}

func runHeadless(db *DB, tel *Telemetry, name string, grid, record, check bool) error {
	sc, ok := scenario.Lookup(name)
	if !ok {
		return fmt.Errorf("%w %q (try -list)", ErrUnknownScenario, name)
	}
	rep, err := RunScenario(sc, RunOptions{Grid: grid})
	if err != nil {
		return err
	}
	fmt.Println(rep)
	tel.Record(rep.Sample())

	if check {
		if err := db.CheckBaseline(rep.Scenario, rep.Hash); err != nil {
			return err
		}
		fmt.Println("baseline OK")
	}
	if record {
		id, err := db.RecordBaseline(BaselineRow{
			Scenario:   rep.Scenario,
			Hash:       rep.Hash,
			Parts:      rep.Parts,
			Iterations: rep.Iterations,
			CreatedBy:  "cli",
		})
		if err != nil {
			return fmt.Errorf("record baseline: %w", err)
		}
		fmt.Printf("baseline %d recorded\n", id)
	}
	return nil
}

func listBaselines(db *DB) error {
	list, err := db.ListBaselines()
	if err != nil {
		return err
	}
	for _, b := range list {
		fmt.Printf("%-16s %s  it=%d  by %s, %s\n", b.Scenario, b.Hash, b.Iterations, b.CreatedBy, FormatAge(b.CreatedAt))
	}
	return nil
}

func runSleepEff(db *DB, update bool) error {
	rep, err := CheckSleeping(db, update, "cli", nil)
	if err != nil {
		return err
	}
	fmt.Println(rep)
	return nil
}

func runMiniEvals() bool {
	results := RunMiniEvals()
	failed := 0
	for _, r := range results {
		fmt.Printf("%-28s PASS=%-5v %s\n", r.Case, r.Pass, r.Detail)
		if !r.Pass {
			failed++
		}
	}
	fmt.Printf("mini-evals: %d/%d passed\n", len(results)-failed, len(results))
	return failed == 0
}

func runPairGate(db *DB) error {
	res, err := RunPairGate(db, DefaultPairGateConfig(), nil)
	fmt.Printf("pair gate: reduction=%s naive=%s grid=%s history=%d\n",
		Percent(res.Reduction), FormatCount(res.NaivePairs), FormatCount(res.GridPairs), res.History)
	if err != nil {
		return err
	}
	fmt.Println("pair gate OK")
	return nil
}

func serve(addr string, db *DB, tel *Telemetry) error {
	hub := NewHub(db, tel)
	go hub.Run()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: addr, Handler: SetupRoutes(hub), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("listen: %w", err)
	case <-stop:
	}
	log.Println("Shutting down...")
	return server.Close()
}
