// Package domain holds the calendar and text-file rules of the forecast
// pipeline: run-date folder resolution, simulation window math, control file
// patching, and the result types shared by the stages.
//
// # Dated Input Folders
//
// Downloaded precipitation grids land in folders keyed by calendar date:
//
//	<grib root>/<YYYYMMDD>/<files>.grib2
//
// The upstream radar product (MRMS MultiSensor QPE) publishes hourly files
// named like
//
//	MultiSensor_QPE_01H_Pass2_00.00_20250527-140000.grib2.gz
//
// where the trailing timestamp is the valid time in UTC. A batch that spans a
// timezone boundary can be filed by the producer under the following calendar
// day, so the resolver probes exactly one day forward when a requested date's
// folder is missing. One day, forward only; anything else means the data
// genuinely is not there. See [ResolveInputFolders].
//
// # Simulation Window
//
// HEC-HMS reads its run window from a flat-text control specification:
//
//	     Start Date: 25 May 2025
//	     Start Time: 16:00
//	     End Date: 28 May 2025
//	     End Time: 03:00
//
// The window is derived from "now" floored to the hour: 47 hours of lookback
// (two days of observed rainfall) and 12 hours of lookahead (the forecast
// horizon). Dates are written day-first without a leading zero, times as
// 24-hour HH:MM, both with the five-space indent HEC-HMS emits itself.
// [PatchControlText] replaces only those four labeled lines and passes every
// other line through untouched.
//
// # Clock Discipline
//
// Every "today" and "now" in the pipeline comes from the package clock in UTC.
// The original scripts mixed local and UTC days depending on the author; here
// there is one time source, swappable in tests via [SetClock].
package domain
