// Package tensorflow runs the feature backbone from a frozen TensorFlow
// GraphDef. It links against libtensorflow and is only built with
// -tags tensorflow.
package tensorflow
