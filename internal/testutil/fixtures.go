package testutil

import "github.com/roach88/mcg/internal/ir"

// SiliconSystem is a small System payload used across package tests.
func SiliconSystem() ir.Object {
	return ir.Object{
		"formula": ir.String("Si"),
		"lattice": ir.Array{
			ir.Array{ir.Float(5.43), ir.Int(0), ir.Int(0)},
			ir.Array{ir.Int(0), ir.Float(5.43), ir.Int(0)},
			ir.Array{ir.Int(0), ir.Int(0), ir.Float(5.43)},
		},
		"pbc": ir.Array{ir.Bool(true), ir.Bool(true), ir.Bool(true)},
	}
}

// KappaResults is the thermal conductivity Results payload
// {"T_K":[300,400],"kappa":[148.5,95.2]}.
func KappaResults() ir.Object {
	return ir.Object{
		"T_K":   ir.Array{ir.Int(300), ir.Int(400)},
		"kappa": ir.Array{ir.Float(148.5), ir.Float(95.2)},
	}
}

// BTEMethod is a Method payload for a Boltzmann transport solver.
func BTEMethod() ir.Object {
	return ir.Object{
		"name":   ir.String("BTE"),
		"solver": ir.String("kaldo"),
	}
}

// BTEParams is a Params payload matching BTEMethod.
func BTEParams() ir.Object {
	return ir.Object{
		"mesh":                 ir.Array{ir.Int(8), ir.Int(8), ir.Int(8)},
		"broadening_width_meV": ir.Float(1.0),
	}
}
