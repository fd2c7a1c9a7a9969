package server

import (
	"net/http"
	"strconv"

	"github.com/df07/go-terrain-marcher/pkg/marcher"
	"github.com/df07/go-terrain-marcher/pkg/shading"
)

// InspectResponse represents the JSON response for pixel inspection
type InspectResponse struct {
	Hit         bool                   `json:"hit"`
	ShaderType  string                 `json:"shaderType"`
	Ray         [3]float32             `json:"ray"`
	Point       [3]float32             `json:"point"`
	Normal      [3]float32             `json:"normal"`
	Distance    float32                `json:"distance"`
	Color       string                 `json:"color"`
	Depth       int                    `json:"depth"`       // Refinement levels entered
	StepSize    float32                `json:"stepSize"`    // Step size at the hit
	Evaluations int                    `json:"evaluations"` // Height field evaluations
	StepSizes   []float32              `json:"stepSizes"`   // Step size of each refinement level, starting with the initial step
	Properties  map[string]interface{} `json:"properties"`
}

// extractShaderInfo describes how a shader treats a hit
func extractShaderInfo(shader shading.Shader, hit marcher.Hit) (string, map[string]interface{}) {
	properties := make(map[string]interface{})

	switch sh := shader.(type) {
	case *shading.TerrainShader:
		properties["band"] = sh.Band(hit.Point.Z)
		properties["albedo"] = sh.Albedo(hit).Hex()
		properties["light"] = sh.Light(hit).Hex()
		properties["sunlit"] = sh.SunFactor(hit) > 0
		properties["fogDistance"] = sh.FogDistance
		return "terrain", properties

	case *shading.SimpleShader:
		properties["heightFactor"] = shading.HeightFactor(hit.Point.Z)
		properties["fogDistance"] = sh.FogDistance
		return "simple", properties

	default:
		return "unknown", properties
	}
}

// handleInspect traces the camera ray through one pixel and reports how the
// marcher found the surface
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	inspectReq := &RenderRequest{}
	if err := s.parseCommonSceneParams(r, inspectReq); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scene parameters: "+err.Error())
		return
	}

	pixelX, err := strconv.Atoi(r.URL.Query().Get("x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid x coordinate")
		return
	}
	pixelY, err := strconv.Atoi(r.URL.Query().Get("y"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid y coordinate")
		return
	}
	if pixelX < 0 || pixelX >= inspectReq.Width || pixelY < 0 || pixelY >= inspectReq.Height {
		writeError(w, http.StatusBadRequest, "Pixel coordinates out of bounds")
		return
	}

	sceneObj, err := s.createScene(inspectReq)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	camera := sceneObj.Camera
	ray := camera.PixelRay(pixelX, pixelY, inspectReq.Width, inspectReq.Height)
	march, fog := sceneObj.March()
	hit, ok, trace := sceneObj.Marcher.Trace(camera.Position, ray, march.MaxSteps, march.StepSize)

	response := InspectResponse{
		Hit:         ok,
		Ray:         ray.Array(),
		Color:       sceneObj.Shader.Shade(camera.Position, ray).Hex(),
		Evaluations: trace.Evaluations,
		StepSizes:   trace.StepSizes,
	}
	if !ok {
		writeJSON(w, http.StatusOK, response)
		return
	}

	shaderType, properties := extractShaderInfo(sceneObj.Shader, hit)
	distance := hit.Point.Subtract(camera.Position).Length()
	properties["fogged"] = distance > fog
	properties["fog"] = shading.FogFactor(distance, fog)

	response.ShaderType = shaderType
	response.Point = hit.Point.Array()
	response.Normal = hit.Normal.Array()
	response.Distance = distance
	response.Depth = hit.Depth
	response.StepSize = hit.StepSize
	response.Properties = properties

	writeJSON(w, http.StatusOK, response)
}
