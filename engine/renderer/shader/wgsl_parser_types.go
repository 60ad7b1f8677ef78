package shader

// hostLayout is the byte size and alignment of a type as the GPU reads it from a buffer.
type hostLayout struct {
	size  uint64
	align uint64
}

// parsedField is one member of a WGSL struct.
type parsedField struct {
	name      string
	typeName  string
	isBuiltin bool
}

// parsedStruct is a WGSL struct block.
type parsedStruct struct {
	name   string
	fields []parsedField
}

// parsedBinding is one @group/@binding declaration of the processed source.
type parsedBinding struct {
	group        int
	binding      int
	addressSpace string
	name         string
	typeName     string
}
