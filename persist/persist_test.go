/*
 * Copyright (c) 2026, FleetMesh Authors.
 * All rights reserved.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package persist

import (
	"path/filepath"
	"testing"
)

func TestLoadCounterMissingFileReturnsZero(t *testing.T) {
	v, err := LoadCounter(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("LoadCounter: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected 0 for a missing counter file, got %d", v)
	}
}

func TestLoadCounterEmptyPathReturnsZero(t *testing.T) {
	v, err := LoadCounter("")
	if err != nil {
		t.Fatalf("LoadCounter: %v", err)
	}
	if v != 0 {
		t.Fatalf("expected 0 for an empty path, got %d", v)
	}
}

func TestSaveThenLoadAppliesNoMarginOnCleanExit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")

	if err := SaveCounter(path, 1000); err != nil {
		t.Fatalf("SaveCounter: %v", err)
	}

	got, err := LoadCounter(path)
	if err != nil {
		t.Fatalf("LoadCounter: %v", err)
	}
	if got != 1000 {
		t.Fatalf("expected 1000 with no crash detected, got %d", got)
	}
}

func TestLoadDetectsUncleanExitAndAppliesMargin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")

	if err := SaveCounter(path, 500); err != nil {
		t.Fatalf("SaveCounter: %v", err)
	}

	// First run starts cleanly: no stale marker yet, so no margin, but
	// this call leaves its own marker behind for the duration of "its"
	// run.
	got, err := LoadCounter(path)
	if err != nil {
		t.Fatalf("LoadCounter: %v", err)
	}
	if got != 500 {
		t.Fatalf("expected 500 on the first clean load, got %d", got)
	}

	// That run crashes without ever calling SaveCounter, leaving its
	// marker behind. The next run's LoadCounter must detect it.
	got, err = LoadCounter(path)
	if err != nil {
		t.Fatalf("LoadCounter: %v", err)
	}
	want := uint32(500 + CrashSafetyMargin)
	if got != want {
		t.Fatalf("expected %d after detecting an unclean exit, got %d", want, got)
	}
}

func TestSaveCounterOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter")

	if err := SaveCounter(path, 1); err != nil {
		t.Fatalf("SaveCounter: %v", err)
	}
	if err := SaveCounter(path, 2); err != nil {
		t.Fatalf("SaveCounter: %v", err)
	}

	got, err := LoadCounter(path)
	if err != nil {
		t.Fatalf("LoadCounter: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected overwritten value to win with no crash margin, got %d", got)
	}
}
