package tickets

import "fmt"

// templateSkeleton is the default body for a newly created ticket: the
// numbered ##-level sections every CR file carries.
func templateSkeleton(code, title string) string {
	return fmt.Sprintf(`# %s: %s

## 1. Description

*To be filled in.*

## 2. Rationale

*To be filled in.*

## 3. Solution Analysis

*To be filled in.*

## 4. Implementation Specification

*To be filled in.*

## 5. Acceptance Criteria

*To be filled in.*
`, code, title)
}
