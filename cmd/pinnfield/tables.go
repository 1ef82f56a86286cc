// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/pinn/ml/layers/field"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	keyStyle    = lipgloss.NewStyle().Faint(true).Padding(0, 1).Align(lipgloss.Right)
	valueStyle  = lipgloss.NewStyle().Padding(0, 1)
)

// newTable returns a rounded table whose first column holds the keys (or steps).
func newTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col == 0:
				return keyStyle
			}
			return valueStyle
		})
}

// summaryTable describes the resolved configuration of the field.
func summaryTable(f *field.Field, numFeatures int) *lgtable.Table {
	table := newTable()
	table.Row("units", humanize.Comma(int64(f.Units())))
	table.Row("activation", f.Activation())
	table.Row("precision", f.DType().String())
	table.Row("trainable", fmt.Sprintf("%v", f.Trainable()))
	table.Row("use bias", fmt.Sprintf("%v", f.UseBias()))
	table.Row("# parameters", humanize.Comma(int64(f.NumParams(numFeatures))))
	table.Row("kernel regularizer", f.KernelCoefficients().String())
	table.Row("bias regularizer", f.BiasCoefficients().String())
	return table
}

// outputsTable shows the outputs of the first sequence for up to maxSteps steps.
// output must be a Float64 tensor shaped [batch, steps, units].
func outputsTable(output *tensors.Tensor, maxSteps int) *lgtable.Table {
	values := output.Value().([][][]float64)
	table := newTable().Headers("step", "outputs")
	if len(values) == 0 {
		return table
	}
	sequence := values[0]
	for step, units := range sequence {
		if step >= maxSteps {
			table.Row("...", fmt.Sprintf("%d more", len(sequence)-maxSteps))
			break
		}
		parts := make([]string, len(units))
		for ii, v := range units {
			parts[ii] = fmt.Sprintf("%.6g", v)
		}
		table.Row(fmt.Sprintf("%d", step), strings.Join(parts, ", "))
	}
	return table
}
