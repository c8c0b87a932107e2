package api

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/p-arndt/querybench/internal/generation"
)

const maxQueryBytes = 64 * 1024

var (
	// dbIDPattern matches a hex MongoDB ObjectID
	dbIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// validateOptimizeRequest validates benchmark parameters
func validateOptimizeRequest(req optimizeRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if len(req.Query) > maxQueryBytes {
		return fmt.Errorf("query must not exceed %d bytes", maxQueryBytes)
	}

	if req.DBID != "" && !dbIDPattern.MatchString(req.DBID) {
		return fmt.Errorf("db_id must be a 24 character hex object id")
	}

	if req.Model != "" && !generation.ValidModel(req.Model) {
		return fmt.Errorf("model_name must be one of: %s", strings.Join(generation.Models, ", "))
	}

	return nil
}
