// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"math"

	"github.com/AleutianAI/ppdfit/services/fit/grid"
)

// Physical constants in SI units (CODATA values).
const (
	speedOfLight    = 2.99792458e8   // m/s
	planckH         = 6.62607015e-34 // J s
	boltzmann       = 1.380649e-23   // J/K
	stefanBoltzmann = 5.670374419e-8 // W m^-2 K^-4
	solarLuminosity = 3.828e26       // W
	parsecM         = 3.0856775814913673e16

	// wattToJansky converts W m^-2 Hz^-1 to Jy.
	wattToJansky = 1e26
)

// PlanckNu evaluates the Planck function B_nu(T) at the given wavelength.
//
// Inputs:
//   - tempK: Temperature in Kelvin. Non-positive temperatures yield 0.
//   - wavelengthM: Wavelength in metres.
//
// Outputs:
//   - float64: Spectral radiance in W m^-2 Hz^-1 sr^-1.
func PlanckNu(tempK, wavelengthM float64) float64 {
	if tempK <= 0 || wavelengthM <= 0 {
		return 0
	}
	nu := speedOfLight / wavelengthM
	x := planckH * nu / (boltzmann * tempK)
	if x > 700 {
		// exp overflows float64; the radiance is numerically zero.
		return 0
	}
	return 2 * planckH * nu * nu * nu / (speedOfLight * speedOfLight) / math.Expm1(x)
}

// StellarRadiusM returns the stellar radius in metres from the effective
// temperature and luminosity via the Stefan-Boltzmann law.
func StellarRadiusM(teffK, lumLsun float64) float64 {
	if teffK <= 0 || lumLsun <= 0 {
		return 0
	}
	return math.Sqrt(lumLsun * solarLuminosity / (4 * math.Pi * stefanBoltzmann * math.Pow(teffK, 4)))
}

// SublimationRadiusMas returns the dust sublimation radius in mas: the
// distance from the star at which blackbody grains reach the sublimation
// temperature, projected to angular units at the given distance.
func SublimationRadiusMas(tsubK, lumLsun, distPc float64) float64 {
	if tsubK <= 0 || lumLsun <= 0 || distPc <= 0 {
		return 0
	}
	rM := math.Sqrt(lumLsun * solarLuminosity / (4 * math.Pi * stefanBoltzmann * math.Pow(tsubK, 4)))
	return rM / (distPc * parsecM) / grid.MasToRad
}

// StellarFluxJy returns the photospheric flux of the star in Jy at the
// given wavelength: pi (R*/d)^2 B_nu(T_eff).
func StellarFluxJy(teffK, lumLsun, distPc, wavelengthM float64) float64 {
	r := StellarRadiusM(teffK, lumLsun)
	if r == 0 || distPc <= 0 {
		return 0
	}
	angle := r / (distPc * parsecM)
	return math.Pi * angle * angle * PlanckNu(teffK, wavelengthM) * wattToJansky
}
