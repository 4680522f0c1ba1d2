package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"example.com/biosgate/internal/analysis"
	"example.com/biosgate/internal/common"
	"example.com/biosgate/internal/discover"
	"example.com/biosgate/internal/flash"
	"example.com/biosgate/internal/image"
	"example.com/biosgate/internal/report"
	"example.com/biosgate/internal/rules"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "analyze":
		analyzeCmd(os.Args[2:])
	case "patch":
		patchCmd(os.Args[2:])
	case "strings":
		stringsCmd(os.Args[2:])
	case "undo":
		undoCmd(os.Args[2:])
	case "flash":
		flashCmd(os.Args[2:])
	case "discover":
		discoverCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`biosctl %s (built %s) <command> [options]

Commands:
  analyze   --in <image> [--out <report.json>] [--ndjson <findings.jsonl>] [--pdf <report.pdf>] [--lang en|ru] [--metrics] [--progress]
  patch     [--in <image>] [--rules <rulepack.yaml>] [--force] [--out <file>] [--audit <audit.jsonl>] [--report <report.json>] [--pdf <report.pdf>]
  strings   --in <image> [--min <n>] [--wide-min <n>] [--narrow-only | --wide-only]
  undo      --in <patched image> --audit <audit.jsonl> --out <restored image>
  flash     --file <image> [--command <flasher cmdline>] [--yes]
  discover  [--dirs <comma-separated>]
`, version, buildDate)
}

type config struct {
	SearchDirs []string           `yaml:"searchDirs"`
	Flasher    string             `yaml:"flasher"`
	Lang       string             `yaml:"lang"`
	Logs       common.LogRotation `yaml:"logs"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	if path == "" {
		if _, err := os.Stat("config/biosgate.yaml"); err == nil {
			path = "config/biosgate.yaml"
		} else {
			cfg.SearchDirs = []string{discover.DefaultSystemDir, "."}
			return cfg, nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	if len(cfg.SearchDirs) == 0 {
		cfg.SearchDirs = []string{discover.DefaultSystemDir, "."}
	}
	return cfg, nil
}

func analyzeCmd(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	in := fs.String("in", "", "input firmware image")
	outJSON := fs.String("out", "", "report JSON output")
	ndjson := fs.String("ndjson", "", "findings NDJSON output")
	pdfPath := fs.String("pdf", "", "report PDF output")
	lang := fs.String("lang", "en", "report language (en, ru)")
	metricsFlag := fs.Bool("metrics", false, "print scan throughput metrics")
	progressFlag := fs.Bool("progress", false, "display scan progress updates")
	configPath := fs.String("config", "", "configuration file")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}
	if err := common.SetupFileLogging(cfg.Logs); err != nil {
		fmt.Println("setup logging:", err)
		os.Exit(1)
	}
	language, err := report.ParseLanguage(*lang)
	if err != nil {
		fmt.Println("language:", err)
		os.Exit(1)
	}

	img, err := image.Load(*in)
	if err != nil {
		fmt.Println("load image:", err)
		os.Exit(1)
	}
	infoColor.Printf("File: %s (%s)\n", *in, common.FormatBytes(int64(img.Len())))

	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		metrics.Start()
	}
	var stopProgress func()
	if metrics != nil && *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	rep, err := analysis.Analyze(img, analysis.DefaultConfig(), metrics)
	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}
	if err != nil {
		fmt.Println("analyze:", err)
		os.Exit(1)
	}

	printFindings(rep, report.NewTranslator(language))

	doc := report.Document{Analysis: rep}
	if *outJSON != "" {
		if err := report.SaveJSON(doc, *outJSON); err != nil {
			fmt.Println("write report:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", *outJSON)
	}
	if *ndjson != "" {
		if err := report.WriteFindingsNDJSON(rep.Findings, *ndjson); err != nil {
			fmt.Println("write findings:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", *ndjson)
	}
	if *pdfPath != "" {
		if err := report.SavePDF(doc, language, *pdfPath); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", *pdfPath)
	}
	if metrics != nil && *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Printf("Metrics: duration=%s matches=%d scanned=%s throughput=%.2f MB/s\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Matches,
			common.FormatBytes(snap.Bytes),
			snap.ThroughputBytesPerSecond()/1_000_000,
		)
	}
}

func printFindings(rep *analysis.Report, tr report.Translator) {
	categories := []string{"spd", "freq-table", "power", "keyword", "menu-string"}
	for _, cat := range categories {
		count := rep.Counts[cat]
		if count == 0 {
			continue
		}
		infoColor.Printf("[%s] %d finding(s)\n", cat, count)
		shown := 0
		for _, f := range rep.Findings {
			if f.Category != cat {
				continue
			}
			fmt.Printf("  @ 0x%08X: %s\n", f.Offset, f.Description)
			shown++
			if shown >= 10 {
				fmt.Printf("  ... (%d more)\n", count-shown)
				break
			}
		}
	}
	if rep.LockedRecords > 0 {
		warnColor.Println(tr.Format("summary.locked", rep.LockedRecords))
	}
	if rep.DroppedRecords > 0 {
		fmt.Println(tr.Format("summary.dropped", rep.DroppedRecords))
	}
}

func patchCmd(args []string) {
	fs := flag.NewFlagSet("patch", flag.ExitOnError)
	in := fs.String("in", "", "input firmware image (discovered when omitted)")
	rulesPath := fs.String("rules", "", "rule pack YAML (builtin pack when omitted)")
	force := fs.Bool("force", false, "apply writes unconditionally (non-idempotent parity mode)")
	out := fs.String("out", "", "output image path (conventional name when omitted)")
	auditPath := fs.String("audit", "", "audit log output (jsonl)")
	reportPath := fs.String("report", "", "report JSON output")
	pdfPath := fs.String("pdf", "", "report PDF output")
	lang := fs.String("lang", "en", "report language (en, ru)")
	configPath := fs.String("config", "", "configuration file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}
	if err := common.SetupFileLogging(cfg.Logs); err != nil {
		fmt.Println("setup logging:", err)
		os.Exit(1)
	}
	language, err := report.ParseLanguage(*lang)
	if err != nil {
		fmt.Println("language:", err)
		os.Exit(1)
	}

	var candidate discover.Candidate
	if *in != "" {
		candidate = discover.Classify(*in)
	} else {
		candidates, err := discover.FindCandidates(cfg.SearchDirs)
		if err != nil {
			fmt.Println("discover:", err)
			os.Exit(1)
		}
		if len(candidates) == 0 {
			errorColor.Println("no firmware image found; pass --in")
			os.Exit(1)
		}
		candidate = candidates[0]
		infoColor.Printf("Using %s (signed=%v)\n", candidate.Path, candidate.Signed)
	}

	// Rule packs are configuration: compiled before the image is read so
	// a malformed pack aborts with nothing touched.
	var pack rules.Pack
	if *rulesPath != "" {
		pack, err = rules.LoadPack(*rulesPath)
		if err != nil {
			fmt.Println("load rules:", err)
			os.Exit(1)
		}
		if *force {
			fmt.Println("--force only applies to the builtin pack; set force: true per rule in the pack")
			os.Exit(1)
		}
	} else {
		pack = rules.BuiltinPack(*force)
	}

	img, err := image.Load(candidate.Path)
	if err != nil {
		fmt.Println("load image:", err)
		os.Exit(1)
	}
	inputSha := common.Sha256OfBytes(img.Data)
	infoColor.Printf("File: %s (%s), sha256=%s\n", candidate.Path, common.FormatBytes(int64(img.Len())), inputSha)

	auditLogPath := *auditPath
	if auditLogPath == "" {
		auditLogPath = candidate.Path + ".audit.jsonl"
	}

	engine := rules.NewEngine()
	audit := common.NewPatchLog(auditLogPath)
	engine.SetAuditLog(audit)

	reports, err := engine.ApplyPack(img, pack)
	if err != nil {
		fmt.Println("apply:", err)
		os.Exit(1)
	}

	totalPatched := 0
	for _, rep := range reports {
		totalPatched += rep.Patched
		switch {
		case rep.Patched > 0:
			successColor.Printf("%s: found=%d patched=%d skipped=%d errors=%d\n", rep.RuleID, rep.Found, rep.Patched, rep.Skipped, rep.Errors)
		case rep.Found == 0:
			// Pattern absent: nothing to do, but worth a human look.
			warnColor.Printf("%s: pattern not found\n", rep.RuleID)
		default:
			fmt.Printf("%s: found=%d patched=0 skipped=%d errors=%d\n", rep.RuleID, rep.Found, rep.Skipped, rep.Errors)
		}
		for _, entry := range rep.Entries {
			fmt.Printf("  [PATCH] 0x%08X: %s -> %s\n", entry.Offset, entry.BeforeHex, entry.AfterHex)
		}
	}

	if totalPatched == 0 {
		warnColor.Println("No patches applied; output not written")
		return
	}

	outPath := *out
	if outPath == "" {
		outPath = filepath.Join(filepath.Dir(candidate.Path), candidate.OutputName())
	}
	if sameFile(outPath, candidate.Path) {
		errorColor.Println("refusing to overwrite the input image")
		os.Exit(1)
	}
	if err := img.Save(outPath); err != nil {
		fmt.Println("save output:", err)
		os.Exit(1)
	}
	outputSha := common.Sha256OfBytes(img.Data)
	successColor.Printf("Saved %s (sha256=%s)\n", outPath, outputSha)
	fmt.Printf("Audit log: %s (run %s)\n", audit.Path(), audit.RunID())

	doc := report.Document{Patches: reports, OutputPath: outPath, OutputSha: outputSha}
	if *reportPath != "" {
		if err := report.SaveJSON(doc, *reportPath); err != nil {
			fmt.Println("write report:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", *reportPath)
	}
	if *pdfPath != "" {
		if err := report.SavePDF(doc, language, *pdfPath); err != nil {
			fmt.Println("write pdf:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", *pdfPath)
	}
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

func stringsCmd(args []string) {
	fs := flag.NewFlagSet("strings", flag.ExitOnError)
	in := fs.String("in", "", "input firmware image")
	min := fs.Int("min", 6, "minimum narrow string length")
	wideMin := fs.Int("wide-min", 4, "minimum wide string length")
	narrowOnly := fs.Bool("narrow-only", false, "extract narrow strings only")
	wideOnly := fs.Bool("wide-only", false, "extract wide strings only")
	fs.Parse(args)

	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}
	if *narrowOnly && *wideOnly {
		fmt.Println("--narrow-only and --wide-only are mutually exclusive")
		os.Exit(1)
	}
	img, err := image.Load(*in)
	if err != nil {
		fmt.Println("load image:", err)
		os.Exit(1)
	}
	if !*wideOnly {
		for _, run := range image.Strings(img.Data, *min) {
			fmt.Printf("0x%08X  %s\n", run.Offset, run.Text)
		}
	}
	if !*narrowOnly {
		for _, run := range image.WideStrings(img.Data, *wideMin) {
			fmt.Printf("0x%08X  [wide] %s\n", run.Offset, run.Text)
		}
	}
}

func undoCmd(args []string) {
	fs := flag.NewFlagSet("undo", flag.ExitOnError)
	in := fs.String("in", "", "patched firmware image")
	audit := fs.String("audit", "", "audit log (jsonl)")
	out := fs.String("out", "", "restored output image")
	fs.Parse(args)

	if *in == "" || *audit == "" || *out == "" {
		fmt.Println("required: --in, --audit, --out")
		os.Exit(1)
	}

	entries, err := common.ReadPatchLog(*audit)
	if err != nil {
		fmt.Println("read audit:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("audit log is empty")
		os.Exit(1)
	}

	img, err := image.Load(*in)
	if err != nil {
		fmt.Println("load image:", err)
		os.Exit(1)
	}
	patchedHash := common.Sha256OfBytes(img.Data)

	mismatches := 0
	applied := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		before, err := entry.BeforeBytes()
		if err != nil {
			fmt.Printf("skip entry %d: decode beforeHex failed: %v\n", i, err)
			continue
		}
		after, err := entry.AfterBytes()
		if err != nil {
			fmt.Printf("skip entry %d: decode afterHex failed: %v\n", i, err)
			continue
		}
		if entry.Offset < 0 || entry.Offset+int64(len(before)) > int64(img.Len()) {
			fmt.Printf("skip entry %d: offset %d out of bounds\n", i, entry.Offset)
			continue
		}
		if len(after) > 0 && entry.Offset+int64(len(after)) <= int64(img.Len()) {
			current := img.Data[entry.Offset : entry.Offset+int64(len(after))]
			if !bytes.Equal(current, after) {
				mismatches++
			}
		}
		copy(img.Data[entry.Offset:], before)
		applied++
	}

	if err := img.Save(*out); err != nil {
		fmt.Println("save restored:", err)
		os.Exit(1)
	}
	restoredHash := common.Sha256OfBytes(img.Data)

	fmt.Printf("Restored %d patch(es) to %s\n", applied, *out)
	fmt.Printf("Patched SHA256:  %s\n", patchedHash)
	fmt.Printf("Restored SHA256: %s\n", restoredHash)
	if mismatches > 0 {
		warnColor.Printf("%d patch(es) did not match expected bytes; original bytes reapplied regardless\n", mismatches)
	}
}

func flashCmd(args []string) {
	fs := flag.NewFlagSet("flash", flag.ExitOnError)
	file := fs.String("file", "", "patched image to flash")
	command := fs.String("command", "", "flasher command line (config/default when omitted)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	configPath := fs.String("config", "", "configuration file")
	fs.Parse(args)

	if *file == "" {
		fmt.Println("required: --file")
		os.Exit(1)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}
	cmdLine := *command
	if cmdLine == "" {
		cmdLine = cfg.Flasher
	}
	flasher, err := flash.New(cmdLine)
	if err != nil {
		fmt.Println("flasher:", err)
		os.Exit(1)
	}
	if !flasher.Available() {
		errorColor.Println("flasher utility not found on this system")
		os.Exit(1)
	}
	if !*yes && !confirm("Flash "+*file+"? This writes to the firmware chip (yes/no): ") {
		fmt.Println("aborted")
		return
	}

	warnColor.Println("!!! DO NOT POWER OFF THE DEVICE !!!")
	res, err := flasher.Flash(context.Background(), *file)
	if res.Output != "" {
		fmt.Print(res.Output)
	}
	if err != nil {
		fmt.Println("flash:", err)
		os.Exit(1)
	}
	if res.Success {
		successColor.Println("Flash succeeded")
	} else {
		errorColor.Println("Flash failed")
		os.Exit(1)
	}
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "yes", "y":
		return true
	}
	return false
}

func discoverCmd(args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	dirs := fs.String("dirs", "", "comma-separated directories to search")
	configPath := fs.String("config", "", "configuration file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}
	searchDirs := cfg.SearchDirs
	if *dirs != "" {
		searchDirs = nil
		for _, d := range strings.Split(*dirs, ",") {
			d = strings.TrimSpace(d)
			if d != "" {
				searchDirs = append(searchDirs, d)
			}
		}
	}
	candidates, err := discover.FindCandidates(searchDirs)
	if err != nil {
		fmt.Println("discover:", err)
		os.Exit(1)
	}
	if len(candidates) == 0 {
		fmt.Println("No firmware images found")
		return
	}
	for _, c := range candidates {
		kind := "raw dump"
		if c.Signed {
			kind = "signed"
		}
		fmt.Printf("%s  (%s -> %s)\n", c.Path, kind, c.OutputName())
	}
}
