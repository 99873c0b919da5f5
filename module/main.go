// The visual-servo module exposes the lead-vehicle pose estimator as a Viam
// modular sensor.
package main

import (
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"

	visualservo "github.com/jerome-labonte-udem/duckietown-visual-servo"
)

func main() {
	module.ModularMain(
		resource.APIModel{API: sensor.API, Model: visualservo.PoseSensorModel},
	)
}
