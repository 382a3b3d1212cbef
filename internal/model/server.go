package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Server runs an ONNX image classifier. The session's input and output
// tensors are allocated once and shared, so Predict calls are serialised.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// ReadMetadata loads the model metadata file, filling unset tensor names.
// An absent layout is resolved from the input shape when the model loads.
func ReadMetadata(metadataPath string) (Metadata, error) {
	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	return metadata, nil
}

// NewServer initialises ONNX Runtime and opens a session for modelPath.
// libraryPath may be empty to use the platform default.
func NewServer(modelPath string, metadata Metadata, libraryPath string) (*Server, error) {
	metadata, _, err := metadata.validate()
	if err != nil {
		return nil, err
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Predict copies input into the session, runs it and returns a copy of the
// raw output vector.
func (s *Server) Predict(ctx context.Context, input []float32) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("onnx session closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := s.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("expected %d input values, got %d", len(dst), len(input))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	outputData := s.outputTensor.GetData()
	out := make([]float32, len(outputData))
	copy(out, outputData)
	return out, nil
}

// Close releases the session and tensors and tears down the environment.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	return ort.DestroyEnvironment()
}
