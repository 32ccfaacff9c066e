// Package pools provides buffer pooling for index I/O.
//
//   - BytePool: size-class pooling for slot encode buffers
//   - PagePool: fixed-size pooling for page cache buffers
package pools
