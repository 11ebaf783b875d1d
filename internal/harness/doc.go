// Package harness runs scheduling scenarios against the real scheduler.
//
// A scenario seeds an in-memory SQLite record store, replaces the
// validation engine with per-record outcome scripts, submits validation
// requests to one scheduler Run and checks the report.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config:
//	  gear: form-qc
//	  datatypes:
//	    - name: UDS
//	      longitudinal: true
//	    - name: NP
//	      depends_on: [UDS]
//	records:
//	  - id: uds-1
//	    participant: p1
//	    datatype: UDS
//	    fields: {visitdate: "2024-01-10"}
//	outcomes:
//	  uds-1: [FAIL, PASS]
//	requests:
//	  - participant: p1
//	    datatype: UDS
//	    records: [uds-1]
//	assertions:
//	  - type: order
//	    participant: p1
//	    records: [uds-1]
//
// # Assertion Types
//
//   - order: a participant's validations ran in exactly this record order
//   - processed_count: the engine saw a record exactly N times
//   - final_status: a record's stored aggregate status
//   - gear_status: one gear's stored outcome for a record
//   - excluded: a record was dropped as unclassifiable
//   - participant_error: a participant stopped with an error of a stage
//   - warning_count: a participant collected exactly N warnings
//
// # Golden Files
//
// RunWithGolden stores the run snapshot under testdata/golden. Regenerate
// with:
//
//	go test ./internal/harness -update
package harness
