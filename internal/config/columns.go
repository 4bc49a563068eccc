package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	VarAbundance = "abundance"
	VarSST       = "sst"
	VarChl       = "chl"
	VarSSH       = "ssh"
)

// Covariates are the environmental inputs, in canonical order.
var Covariates = []string{VarSST, VarChl, VarSSH}

// Variables are the covariates plus the target.
var Variables = []string{VarAbundance, VarSST, VarChl, VarSSH}

type ColumnKind int

const (
	KindRaw ColumnKind = iota
	KindLag
	KindRollingMean
	KindRollingStd
	KindRatio
)

// Column is a parsed feature column name.
type Column struct {
	Name  string
	Kind  ColumnKind
	Var   string
	Other string // denominator for KindRatio
	Lag   int
}

// ParseColumn resolves a feature column name against this configuration.
//
//	sst, chl, ssh, abundance   raw value
//	<var>_lag<k>               value k records earlier, 1 <= k <= LagDepth
//	<cov>_rolling<w>           trailing mean, w == RollingWindow
//	<cov>_rolling_std          trailing sample standard deviation
//	<a>_<b>_ratio              a / b, only when Ratios is enabled
func (c Forecast) ParseColumn(name string) (Column, error) {
	col := Column{Name: name}

	if isVariable(name) {
		col.Kind = KindRaw
		col.Var = name
		return col, nil
	}

	parts := strings.Split(name, "_")
	switch {
	case len(parts) == 2 && strings.HasPrefix(parts[1], "lag"):
		k, err := strconv.Atoi(strings.TrimPrefix(parts[1], "lag"))
		if err != nil || !isVariable(parts[0]) {
			return col, fmt.Errorf("unknown feature column %q", name)
		}
		if k < 1 || k > c.LagDepth {
			return col, fmt.Errorf("feature column %q: lag must be within 1..%d", name, c.LagDepth)
		}
		col.Kind = KindLag
		col.Var = parts[0]
		col.Lag = k
		return col, nil

	case len(parts) == 3 && parts[1] == "rolling" && parts[2] == "std":
		if !isCovariate(parts[0]) {
			return col, fmt.Errorf("unknown feature column %q", name)
		}
		col.Kind = KindRollingStd
		col.Var = parts[0]
		return col, nil

	case len(parts) == 2 && strings.HasPrefix(parts[1], "rolling"):
		w, err := strconv.Atoi(strings.TrimPrefix(parts[1], "rolling"))
		if err != nil || !isCovariate(parts[0]) {
			return col, fmt.Errorf("unknown feature column %q", name)
		}
		if w != c.RollingWindow {
			return col, fmt.Errorf("feature column %q: rolling window is %d", name, c.RollingWindow)
		}
		col.Kind = KindRollingMean
		col.Var = parts[0]
		return col, nil

	case len(parts) == 3 && parts[2] == "ratio":
		if !isCovariate(parts[0]) || !isCovariate(parts[1]) || parts[0] == parts[1] {
			return col, fmt.Errorf("unknown feature column %q", name)
		}
		if !c.Ratios {
			return col, fmt.Errorf("feature column %q requires ratio features to be enabled", name)
		}
		col.Kind = KindRatio
		col.Var = parts[0]
		col.Other = parts[1]
		return col, nil
	}

	return col, fmt.Errorf("unknown feature column %q", name)
}

// Columns parses every configured feature column, in order.
func (c Forecast) Columns() ([]Column, error) {
	cols := make([]Column, 0, len(c.Features))
	for _, name := range c.Features {
		col, err := c.ParseColumn(name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// RatioPairs returns the covariate pairs derived when ratios are enabled.
func RatioPairs() [][2]string {
	var pairs [][2]string
	for i := 0; i < len(Covariates); i++ {
		for j := i + 1; j < len(Covariates); j++ {
			pairs = append(pairs, [2]string{Covariates[i], Covariates[j]})
		}
	}
	return pairs
}

func isVariable(s string) bool {
	for _, v := range Variables {
		if v == s {
			return true
		}
	}
	return false
}

func isCovariate(s string) bool {
	for _, v := range Covariates {
		if v == s {
			return true
		}
	}
	return false
}
