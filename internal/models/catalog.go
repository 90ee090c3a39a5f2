package models

// All aliases route to the same local backend; the catalog exists for
// OpenAI client compatibility.
const (
	catalogCreated = 1744718400
	catalogOwner   = "parakeet-tdt-0.6b-v2-released-by-nvidia-with-cc-by-40-license"
)

// ModelInfo mirrors the OpenAI model object.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList mirrors the OpenAI list envelope.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

var availableModels = []ModelInfo{
	{ID: "gpt-4o-transcribe", Object: "model", Created: catalogCreated, OwnedBy: catalogOwner},
	{ID: "gpt-4o-mini-transcribe", Object: "model", Created: catalogCreated, OwnedBy: catalogOwner},
	{ID: "parakeet-tdt-0.6b-v2", Object: "model", Created: catalogCreated, OwnedBy: catalogOwner},
	{ID: "whisper-1", Object: "model", Created: catalogCreated, OwnedBy: catalogOwner},
}

// ListModels returns the fixed model catalog.
func ListModels() ModelList {
	data := make([]ModelInfo, len(availableModels))
	copy(data, availableModels)
	return ModelList{Object: "list", Data: data}
}

// GetModel looks a model alias up in the catalog.
func GetModel(id string) (ModelInfo, bool) {
	for _, m := range availableModels {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}
