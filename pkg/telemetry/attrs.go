package telemetry

import (
	"fmt"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

type SpanAttributes struct {
	ActionCategory string

	Experiment    optional[string]    // fuzzbench.experiment
	Fuzzer        optional[string]    // fuzzbench.fuzzer
	Benchmark     optional[string]    // fuzzbench.benchmark
	trialCount    optional[int]       // fuzzbench.trial.count
	requestsFile  optional[string]    // fuzzbench.requests.file
	buildStep     optional[string]    // gcb.step.id
	buildImages   optional[[]string]  // gcb.images
	dispatchTime  optional[time.Time] // fuzzbench.dispatch.time
	pausedService optional[bool]      // fuzzbench.service.paused

	extraAttributes map[string]any
}

func NewSpanAttributes(actionCategory ActionCategory) *SpanAttributes {
	return &SpanAttributes{
		ActionCategory:  actionCategory.String(),
		extraAttributes: make(map[string]any),
	}
}

// returns an empty SpanAttributes instance with no action category.
// this is useful for creating a SpanAttributes instance that can be populated later.
func EmptySpanAttributes() *SpanAttributes {
	return &SpanAttributes{
		extraAttributes: make(map[string]any),
	}
}

// Merge updates the current SpanAttributes with values from another SpanAttributes.
// Values are only updated if they are set in the other SpanAttributes and not set in the current one.
// The ActionCategory is always updated regardless of its state.
func (o *SpanAttributes) Merge(other *SpanAttributes) {
	if other == nil {
		return
	}

	if other.ActionCategory != "" {
		o.ActionCategory = other.ActionCategory
	}

	// Merge optional fields - only update if not already set
	mergeOptional(&o.Experiment, &other.Experiment)
	mergeOptional(&o.Fuzzer, &other.Fuzzer)
	mergeOptional(&o.Benchmark, &other.Benchmark)
	mergeOptional(&o.trialCount, &other.trialCount)
	mergeOptional(&o.requestsFile, &other.requestsFile)
	mergeOptional(&o.buildStep, &other.buildStep)
	mergeOptional(&o.buildImages, &other.buildImages)
	mergeOptional(&o.dispatchTime, &other.dispatchTime)
	mergeOptional(&o.pausedService, &other.pausedService)

	// Merge extra attributes
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	for k, v := range other.extraAttributes {
		if _, exists := o.extraAttributes[k]; !exists {
			o.extraAttributes[k] = v
		}
	}
}

func (o *SpanAttributes) WithExperiment(val string) *SpanAttributes {
	o.Experiment.Set(val)
	return o
}

func (o *SpanAttributes) WithFuzzer(val string) *SpanAttributes {
	o.Fuzzer.Set(val)
	return o
}

func (o *SpanAttributes) WithBenchmark(val string) *SpanAttributes {
	o.Benchmark.Set(val)
	return o
}

func (o *SpanAttributes) WithTrialCount(val int) *SpanAttributes {
	o.trialCount.Set(val)
	return o
}

func (o *SpanAttributes) WithRequestsFile(val string) *SpanAttributes {
	o.requestsFile.Set(val)
	return o
}

func (o *SpanAttributes) WithBuildStep(val string) *SpanAttributes {
	o.buildStep.Set(val)
	return o
}

func (o *SpanAttributes) WithBuildImages(val []string) *SpanAttributes {
	o.buildImages.Set(val)
	return o
}

func (o *SpanAttributes) WithDispatchTime(val time.Time) *SpanAttributes {
	o.dispatchTime.Set(val)
	return o
}

func (o *SpanAttributes) WithPausedService(val bool) *SpanAttributes {
	o.pausedService.Set(val)
	return o
}

func (o *SpanAttributes) WithExtraAttribute(key string, val any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	o.extraAttributes[key] = val
	return o
}

func (o *SpanAttributes) WithExtraAttributes(attrs map[string]any) *SpanAttributes {
	if o.extraAttributes == nil {
		o.extraAttributes = make(map[string]any)
	}
	maps.Copy(o.extraAttributes, attrs)
	return o
}

func (o SpanAttributes) Attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	attrs = append(attrs, attribute.String("fuzzbench.action.category", o.ActionCategory))
	if o.Experiment.set {
		attrs = append(attrs, attribute.String("fuzzbench.experiment", o.Experiment.val))
	}
	if o.Fuzzer.set {
		attrs = append(attrs, attribute.String("fuzzbench.fuzzer", o.Fuzzer.val))
	}
	if o.Benchmark.set {
		attrs = append(attrs, attribute.String("fuzzbench.benchmark", o.Benchmark.val))
	}
	if o.trialCount.set {
		attrs = append(attrs, attribute.Int("fuzzbench.trial.count", o.trialCount.val))
	}
	if o.requestsFile.set {
		attrs = append(attrs, attribute.String("fuzzbench.requests.file", o.requestsFile.val))
	}
	if o.buildStep.set {
		attrs = append(attrs, attribute.String("gcb.step.id", o.buildStep.val))
	}
	if o.buildImages.set {
		attrs = append(attrs, attribute.StringSlice("gcb.images", o.buildImages.val))
	}
	if o.dispatchTime.set {
		attrs = append(attrs, attribute.String("fuzzbench.dispatch.time", o.dispatchTime.val.Format(time.RFC3339Nano)))
	}
	if o.pausedService.set {
		attrs = append(attrs, attribute.Bool("fuzzbench.service.paused", o.pausedService.val))
	}

	for k, v := range o.extraAttributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}

	return attrs
}

type EventAttributes []attribute.KeyValue

func NewEventAttributes(attributes map[string]string) EventAttributes {
	attrs := make(EventAttributes, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type optional[T any] struct {
	val T
	set bool
}

func (o *optional[T]) Set(val T) { o.val = val; o.set = true }

func mergeOptional[T any](target, source *optional[T]) {
	if !target.set && source.set {
		target.val = source.val
		target.set = true
	}
}
