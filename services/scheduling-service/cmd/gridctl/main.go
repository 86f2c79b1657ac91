package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/libs/runtime"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/grid"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/storage"
)

// gridctl runs the availability grid batch jobs from cron:
//
//	gridctl -init -days 30            seed cells for all open branches
//	gridctl -init -branch <id> -force rebuild one branch's cells
//	gridctl -prune                    drop past cells and stale overrides
//	gridctl -inspect -room <id> -date 2026-09-14
func main() {
	var (
		doInit    = flag.Bool("init", false, "initialize grid cells")
		doPrune   = flag.Bool("prune", false, "prune past cells and stale schedule overrides")
		doInspect = flag.Bool("inspect", false, "print one room-day of cells")
		days      = flag.Int("days", 30, "days ahead to initialize")
		branchID  = flag.String("branch", "", "limit init to one branch id")
		force     = flag.Bool("force", false, "rewrite existing cells on init")
		cutoff    = flag.String("cutoff", "", "prune cutoff date (default today, YYYY-MM-DD)")
		roomID    = flag.String("room", "", "room id for inspect")
		date      = flag.String("date", "", "date for inspect (YYYY-MM-DD)")
	)
	flag.Parse()

	if !*doInit && !*doPrune && !*doInspect {
		fatal("one of -init, -prune or -inspect is required")
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fatal("DATABASE_URL is required")
	}

	logger := runtime.NewLogger("gridctl")
	ctx, stop := runtime.SignalContext()
	defer stop()

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		fatal("db connection failed: " + err.Error())
	}
	defer pool.Close()

	branchRepo := storage.NewBranchRepository(pool)
	roomRepo := storage.NewRoomRepository(pool)
	staffRepo := storage.NewStaffRepository(pool)
	gridRepo := storage.NewGridRepository(pool)

	if *doInit {
		report, err := grid.NewInitializer(branchRepo, roomRepo, gridRepo, logger).
			Run(ctx, *days, strings.TrimSpace(*branchID), *force)
		if err != nil {
			fatal("init failed: " + err.Error())
		}
		printJSON(report)
	}

	if *doPrune {
		cutoffDate := model.DateOnly(time.Now().UTC())
		if s := strings.TrimSpace(*cutoff); s != "" {
			cutoffDate, err = model.ParseDate(s)
			if err != nil {
				fatal(err.Error())
			}
		}
		report, err := grid.NewPruner(gridRepo, staffRepo, logger).Run(ctx, cutoffDate)
		if err != nil {
			fatal("prune failed: " + err.Error())
		}
		printJSON(report)
	}

	if *doInspect {
		if strings.TrimSpace(*roomID) == "" || strings.TrimSpace(*date) == "" {
			fatal("-room and -date are required for inspect")
		}
		day, err := model.ParseDate(strings.TrimSpace(*date))
		if err != nil {
			fatal(err.Error())
		}
		cells, err := gridRepo.DayCells(ctx, strings.TrimSpace(*roomID), day)
		if err != nil {
			fatal("inspect failed: " + err.Error())
		}
		for _, c := range cells {
			line := fmt.Sprintf("%s  %s", c.Slot, c.Status)
			if c.BookingID != "" {
				line += "  " + c.BookingID
			}
			fmt.Println(line)
		}
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(string(out))
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "gridctl: "+msg)
	os.Exit(1)
}
