/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package queryparser

import (
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// function type for processing nodes during traversal
type NodeProcessor func(msg protoreflect.Message) error

/*
	Each parse tree returned by pg_query_go is a protobuf message. Nodes are
	wrapped in pg_query.Node whose "node" oneof holds the concrete statement or
	expression, so the walk has to step through the active oneof field before
	descending into the declared fields.

	Query: GRANT SELECT ON public.orders TO authenticated
	Traversal:
	Traversing NodeType: pg_query.Node
	Traversing NodeType: pg_query.GrantStmt
	Field: objects, Type: message
	Traversing NodeType: pg_query.Node
	Traversing NodeType: pg_query.RangeVar
	Field: grantees, Type: message
	Traversing NodeType: pg_query.Node
	Traversing NodeType: pg_query.RoleSpec
	Field: rolename, Type: string
*/
func TraverseParseTree(msg protoreflect.Message, visited map[protoreflect.Message]bool, processor NodeProcessor) error {
	if msg == nil || !msg.IsValid() {
		return nil
	}

	if visited[msg] {
		return nil
	}
	visited[msg] = true

	nodeType := msg.Descriptor().FullName()
	log.Tracef("Traversing NodeType: %s", nodeType)
	if err := processor(msg); err != nil {
		return fmt.Errorf("error processing node %s: %w", nodeType, err)
	}

	// Reference Oneof - https://protobuf.dev/programming-guides/proto3/#oneof
	if nodeType == PG_QUERY_NODE_NODE {
		nodeField := getOneofActiveField(msg, "node")
		if nodeField != nil {
			value := msg.Get(nodeField)
			if value.IsValid() {
				err := TraverseParseTree(value.Message(), visited, processor)
				if err != nil {
					return err
				}
			}
		}
	}

	return TraverseNodeFields(msg, visited, processor)
}

func TraverseNodeFields(msg protoreflect.Message, visited map[protoreflect.Message]bool, processor NodeProcessor) error {
	fields := msg.Descriptor().Fields()
	if fields == nil || fields.Len() == 0 {
		return nil
	}

	for i := 0; i < fields.Len(); i++ {
		fieldDesc := fields.Get(i)
		if !msg.Has(fieldDesc) {
			continue
		}
		if oneof := fieldDesc.ContainingOneof(); oneof != nil {
			if fieldDesc != msg.WhichOneof(oneof) {
				continue
			}
		}
		value := msg.Get(fieldDesc)
		switch {
		case fieldDesc.IsList() && fieldDesc.Kind() == protoreflect.MessageKind:
			list := value.List()
			for j := 0; j < list.Len(); j++ {
				err := TraverseParseTree(list.Get(j).Message(), visited, processor)
				if err != nil {
					return fmt.Errorf("error traversing field %s: %w", fieldDesc.Name(), err)
				}
			}

		case fieldDesc.Kind() == protoreflect.MessageKind:
			err := TraverseParseTree(value.Message(), visited, processor)
			if err != nil {
				return fmt.Errorf("error traversing field %s: %w", fieldDesc.Name(), err)
			}

		case IsScalarKind(fieldDesc.Kind()):
		default:
			log.Debugf("field kind case not covered: %s", fieldDesc.Kind())
		}
	}

	return nil
}

// ScalarKind is all datatypes including enums
func IsScalarKind(kind protoreflect.Kind) bool {
	listOfScalarKinds := []protoreflect.Kind{
		protoreflect.Int32Kind, protoreflect.Uint32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind, protoreflect.Fixed32Kind,
		protoreflect.Int64Kind, protoreflect.Uint64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind, protoreflect.Fixed64Kind,
		protoreflect.FloatKind, protoreflect.DoubleKind,
		protoreflect.BoolKind, protoreflect.StringKind, protoreflect.BytesKind, protoreflect.EnumKind}
	return slices.Contains(listOfScalarKinds, kind)
}

func getOneofActiveField(msg protoreflect.Message, oneofName string) protoreflect.FieldDescriptor {
	if msg == nil {
		return nil
	}
	descriptor := msg.Descriptor()
	if descriptor == nil {
		return nil
	}
	oneofDescriptor := descriptor.Oneofs().ByName(protoreflect.Name(oneofName))
	if oneofDescriptor == nil {
		return nil
	}
	return msg.WhichOneof(oneofDescriptor)
}

func GetMsgFullName(msg protoreflect.Message) string {
	return string(msg.Descriptor().FullName())
}

// GetStringField retrieves a string field from a message.
func GetStringField(msg protoreflect.Message, fieldName string) string {
	field := msg.Descriptor().Fields().ByName(protoreflect.Name(fieldName))
	if field != nil && msg.Has(field) {
		return msg.Get(field).String()
	}
	return ""
}
