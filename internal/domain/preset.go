package domain

// GraphicsPreset controls how much of the map is streamed and drawn. Distances are in metres.
type GraphicsPreset struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	VehicleDrawDist  float64 `json:"vehicleDrawDist"`
	VehicleLODDist   float64 `json:"vehicleLodDist"`
	TileDrawDist     float64 `json:"tileDrawDist"`
	BuildingDrawDist float64 `json:"buildingDrawDist"`

	// Distance between switches to the next coarser tile resolution
	LODSwitchDist float64 `json:"lodSwitchDist"`

	AnisotropicFilter int  `json:"anisotropicFilter"`
	MSAASamples       int  `json:"msaaSamples"`
	Shadows           bool `json:"shadows"`

	// Maximum number of queued work items run on the render thread per frame
	WorkPerFrame int `json:"workPerFrame"`
}
