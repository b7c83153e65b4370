// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

// Command dwarflint reads an ELF object file and reports structural
// defects in its DWARF debug sections: malformed byte streams,
// inconsistent cross-section references, overlapping or dangling
// ranges, unreferenced padding, and mis-applied relocations.
package main

import (
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/wf-tools/dwarflint/go/diag"
	"github.com/wf-tools/dwarflint/go/dwarfmodel"
	"github.com/wf-tools/dwarflint/go/elf"
	"github.com/wf-tools/dwarflint/go/locrange"
)

func main() {
	var input, warnings, errorsFlag string
	var rangeCoverage bool
	flag.StringVar(&input, "input", "", "Path to the ELF object file to validate")
	flag.StringVar(&warnings, "warnings", "", "Criterion string selecting which categories are reported (default: all)")
	flag.StringVar(&errorsFlag, "errors", "error", "Criterion string selecting which categories are promoted to errors")
	flag.BoolVar(&rangeCoverage, "range-coverage", false, "Cross-check .debug_ranges payload against the file's allocated sections")
	flag.Parse()

	if input == "" {
		glog.Errorf("No input file specified")
		os.Exit(1)
	}

	warningCriteria, err := parseCriteria(warnings, diag.All())
	if err != nil {
		glog.Errorf("Invalid -warnings criterion: %v", err)
		os.Exit(1)
	}
	errorCriteria, err := parseCriteria(errorsFlag, diag.Only(diag.CatError))
	if err != nil {
		glog.Errorf("Invalid -errors criterion: %v", err)
		os.Exit(1)
	}

	f, err := os.Open(input)
	if err != nil {
		glog.Errorf("Failed to open %s: %v", input, err)
		os.Exit(1)
	}
	defer f.Close()

	readErr, file := elf.ReadELF(f)
	if readErr != nil {
		glog.Errorf("Failed to parse %s: %v", input, readErr)
		os.Exit(1)
	}

	facade := diag.NewFacade(warningCriteria, errorCriteria, diag.GlogSink{})

	chain, err := dwarfmodel.BuildCUChain(file, facade)
	if err != nil {
		glog.Errorf("Failed to scan compile units in %s: %v", input, err)
		os.Exit(1)
	}
	glog.Infof("Discovered %d compile unit(s) in %s", len(chain.CUs), input)

	checkSection(file, chain, elf.SecLoc, facade, nil)

	var coverageMap *locrange.CoverageMap
	if rangeCoverage {
		coverageMap = locrange.NewCoverageMap(file)
	}
	checkSection(file, chain, elf.SecRanges, facade, coverageMap)
	if rangeCoverage && coverageMap != nil {
		coverageMap.FindHoles(facade, elf.SecRanges)
	}

	if facade.ErrorCount() > 0 {
		glog.Errorf("%d error(s) found", facade.ErrorCount())
		os.Exit(1)
	}
	glog.Infof("No structural errors found")
}

// checkSection drives locrange over one of .debug_loc/.debug_ranges, if
// the file carries it. A missing section is not itself an error: plenty
// of object files have no location lists at all.
func checkSection(file *elf.Elf, chain *dwarfmodel.CUChain, id elf.DebugSectionID, facade *diag.Facade, coverageMap *locrange.CoverageMap) {
	driver, err := locrange.NewDriver(file, id, facade, coverageMap)
	if err != nil {
		return
	}
	driver.CheckAll(chain)
	driver.Finish()
}
