// Package harness provides conformance testing for dbgen templates.
//
// A scenario compiles one template, generates a complete run with fixed
// options and checks the output two ways: the rendered files, and the
// same rows loaded into an in-memory SQLite database.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	template: ../templates/shop.cue   # or an inline "source:" block
//	options:
//	  seed: "5a5a...5a"               # 64 hex digits, default all zeros
//	  now: "2024-01-01 00:00:00"
//	  files: 2
//	  total_rows: 3
//	  rows_per_batch: 2
//	  format: csv
//	assertions:
//	  - type: row_count
//	    table: order_items
//	    count: 6
//	  - type: final_state
//	    table: orders
//	    where: { id: 2 }
//	    expect: { status: "new" }
//	  - type: file_contains
//	    file: orders.0.csv
//	    text: "1,new"
//	  - type: deterministic
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - row_count: Verifies a table received exactly N rows
//   - final_state: Queries a loaded table and verifies expected values
//   - file_contains: Verifies a generated file contains a substring
//   - deterministic: Regenerates every file alone and compares the bytes
//   - error: Verifies compilation or generation failed with an error code
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/shop.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
